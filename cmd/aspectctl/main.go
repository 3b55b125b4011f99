package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/glimte/aspect-go/interceptors"
	"github.com/glimte/aspect-go/internal/config"
	"github.com/glimte/aspect-go/internal/rabbitmq"
	"github.com/glimte/aspect-go/manifest"
	"github.com/spf13/cobra"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// errLintFailed is returned when at least one manifest has problems
var errLintFailed = errors.New("lint failed")

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aspectctl",
		Short: "Inspect aspect-go binding manifests and configuration",
		Long: `aspectctl checks binding manifests before they are deployed and shows the
configuration a factory created from the environment would use.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	rootCmd.AddCommand(newLintCmd(), newConfigCmd(), newBuiltinsCmd())
	return rootCmd
}

func newLintCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "lint <manifest> [manifest...]",
		Short: "Validate binding manifests",
		Long: `Parse and validate binding manifests. Interceptors that are not built in
are reported as warnings, or as errors with --strict.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if !lintManifest(cmd.OutOrStdout(), path, strict) {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d manifests", errLintFailed, failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat interceptors that are not built in as errors")
	return cmd
}

func lintManifest(out io.Writer, path string, strict bool) bool {
	m, err := manifest.Load(path)
	if err != nil {
		fmt.Fprintf(out, "FAIL %s\n", path)
		printProblems(out, err)
		return false
	}

	builtin := make(map[string]bool)
	for _, name := range interceptors.BuiltinNames() {
		builtin[name] = true
	}

	ok := true
	for _, name := range m.Interceptors() {
		if builtin[name] {
			continue
		}
		if strict {
			ok = false
			fmt.Fprintf(out, "  error: interceptor %s is not built in\n", name)
		} else {
			fmt.Fprintf(out, "  warning: interceptor %s is not built in; register it before applying\n", name)
		}
	}

	status := "OK"
	if !ok {
		status = "FAIL"
	}
	types, methods, bindings := countEntries(m)
	fmt.Fprintf(out, "%s %s: %d types, %d methods, %d bindings\n", status, path, types, methods, bindings)
	return ok
}

func printProblems(out io.Writer, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(out, "  %s\n", line)
	}
}

func countEntries(m *manifest.Manifest) (types, methods, bindings int) {
	for _, entry := range m.Types {
		types++
		bindings += len(entry.Bindings)
		for _, method := range entry.Methods {
			methods++
			bindings += len(method.Bindings)
		}
	}
	return types, methods, bindings
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the configuration loaded from ASPECT_* variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func printConfig(out io.Writer, cfg *config.Config) {
	row := func(key string, value any) {
		fmt.Fprintf(out, "%-32s %v\n", key, value)
	}

	row("ASPECT_VARIANT", cfg.Variant)
	row("ASPECT_LOG_LEVEL", cfg.Level())
	row("ASPECT_MANIFEST", orNone(cfg.Manifest))
	row("ASPECT_STRICT_BINDINGS", cfg.StrictBindings)
	if !cfg.TimingEnabled() {
		row("ASPECT_TIMING_AMQP_URL", "(none, timing records are only logged)")
		return
	}
	row("ASPECT_TIMING_AMQP_URL", rabbitmq.SanitizeURL(cfg.TimingAMQPURL))
	row("ASPECT_TIMING_EXCHANGE", cfg.TimingExchange)
	if cfg.TimingRoutingKey == "" {
		row("ASPECT_TIMING_ROUTING_KEY", "(per method)")
	} else {
		row("ASPECT_TIMING_ROUTING_KEY", cfg.TimingRoutingKey)
	}
	row("ASPECT_TIMING_PUBLISH_TIMEOUT", cfg.TimingPublishTimeout)
	row("ASPECT_TIMING_BREAKER_FAILURES", cfg.TimingBreakerFailures)
	row("ASPECT_TIMING_BREAKER_COOLDOWN", cfg.TimingBreakerCooldown)
	row("ASPECT_TIMING_QUEUE_SIZE", cfg.TimingQueueSize)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func newBuiltinsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "builtins",
		Short: "List the built-in interceptor names",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range interceptors.BuiltinNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
