// Package manifest loads binding declarations from YAML.
//
// A manifest names types, interceptors and error types by the names they
// were registered under, so it can be kept outside the program:
//
//	version: v1
//	types:
//	  - type: billing.Invoices
//	    bindings:
//	      - interceptor: aspect.logging
//	        priority: 1
//	    methods:
//	      - name: Issue
//	        bindings:
//	          - interceptor: aspect.caching
//	            args: [60]
//	        handle_errors:
//	          - error: billing.QuotaError
//	            strategy: ignore
//	            return_value: 0
//	        write_logs:
//	          - moment: before
//	            content: issuing invoice
//	        elapsed_time:
//	          mode: record
//	          variant: debug
package manifest

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/glimte/aspect-go/contracts"
	"gopkg.in/yaml.v3"
)

const (
	SupportedManifestVersion = "v1"
)

// ErrInvalidManifest is wrapped by every validation failure
var ErrInvalidManifest = errors.New("manifest: invalid manifest")

// Manifest is the root of a binding manifest
type Manifest struct {
	Version string      `yaml:"version"`
	Types   []TypeEntry `yaml:"types"`
}

// TypeEntry declares bindings for one registered type
type TypeEntry struct {
	Type     string         `yaml:"type"`
	Bindings []BindingEntry `yaml:"bindings"`
	Methods  []MethodEntry  `yaml:"methods"`
}

// BindingEntry binds a registered interceptor
type BindingEntry struct {
	Interceptor string `yaml:"interceptor"`
	Priority    *int   `yaml:"priority"`
	Args        []any  `yaml:"args"`
}

// MethodEntry declares bindings and policies for one method
type MethodEntry struct {
	Name         string             `yaml:"name"`
	Bindings     []BindingEntry     `yaml:"bindings"`
	HandleErrors []HandleErrorEntry `yaml:"handle_errors"`
	WriteLogs    []WriteLogEntry    `yaml:"write_logs"`
	ElapsedTime  *ElapsedTimeEntry  `yaml:"elapsed_time"`
}

// HandleErrorEntry is the YAML form of contracts.HandleError. Strategy
// defaults to rethrow and Log to true.
type HandleErrorEntry struct {
	Error        string                   `yaml:"error"`
	Strategy     *contracts.ErrorStrategy `yaml:"strategy"`
	Log          *bool                    `yaml:"log"`
	ReturnValue  any                      `yaml:"return_value"`
	ExtraMessage string                   `yaml:"extra_message"`
	Variant      contracts.Variant        `yaml:"variant"`
}

// WriteLogEntry is the YAML form of contracts.WriteLog
type WriteLogEntry struct {
	Moment  contracts.LogMoment `yaml:"moment"`
	Content string              `yaml:"content"`
	Variant contracts.Variant   `yaml:"variant"`
}

// ElapsedTimeEntry is the YAML form of contracts.NoteElapsedTime
type ElapsedTimeEntry struct {
	Mode    contracts.TimingMode `yaml:"mode"`
	Variant contracts.Variant    `yaml:"variant"`
}

// Error reports a problem at a location in the manifest
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("manifest: %v", e.Err)
	}
	return fmt.Sprintf("manifest: %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func invalid(path, format string, args ...any) error {
	return &Error{Path: path, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidManifest}, args...)...)}
}

// Load reads and validates the manifest at path
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a manifest
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &Error{Err: fmt.Errorf("failed to parse manifest YAML: %w", err)}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the manifest structure. Every problem found is reported.
func (m *Manifest) Validate() error {
	var errs []error

	if m.Version == "" {
		errs = append(errs, invalid("version", "version is required"))
	} else if m.Version != SupportedManifestVersion {
		errs = append(errs, invalid("version", "unsupported manifest version: %s (supported: %s)",
			m.Version, SupportedManifestVersion))
	}

	seenTypes := make(map[string]bool)
	for i, entry := range m.Types {
		path := fmt.Sprintf("types[%d]", i)
		if entry.Type == "" {
			errs = append(errs, invalid(path, "type is required"))
		} else if seenTypes[entry.Type] {
			errs = append(errs, invalid(path, "duplicate type entry: %s", entry.Type))
		}
		seenTypes[entry.Type] = true

		errs = append(errs, validateBindings(path, entry.Bindings)...)

		seenMethods := make(map[string]bool)
		for j, method := range entry.Methods {
			mpath := fmt.Sprintf("%s.methods[%d]", path, j)
			if method.Name == "" {
				errs = append(errs, invalid(mpath, "method name is required"))
			} else if seenMethods[method.Name] {
				errs = append(errs, invalid(mpath, "duplicate method entry: %s", method.Name))
			}
			seenMethods[method.Name] = true

			errs = append(errs, validateBindings(mpath, method.Bindings)...)
			for k, h := range method.HandleErrors {
				if h.Error == "" {
					errs = append(errs, invalid(fmt.Sprintf("%s.handle_errors[%d]", mpath, k), "error type is required"))
				}
			}
		}
	}

	return errors.Join(errs...)
}

func validateBindings(path string, bindings []BindingEntry) []error {
	var errs []error
	for i, b := range bindings {
		bpath := fmt.Sprintf("%s.bindings[%d]", path, i)
		if b.Interceptor == "" {
			errs = append(errs, invalid(bpath, "interceptor is required"))
		}
		if b.Priority != nil && (*b.Priority < 0 || *b.Priority > math.MaxUint8) {
			errs = append(errs, invalid(bpath, "priority %d out of range 0-255", *b.Priority))
		}
	}
	return errs
}

// Interceptors returns every interceptor name the manifest binds, in order of
// first use
func (m *Manifest) Interceptors() []string {
	var names []string
	seen := make(map[string]bool)
	add := func(bindings []BindingEntry) {
		for _, b := range bindings {
			if !seen[b.Interceptor] {
				seen[b.Interceptor] = true
				names = append(names, b.Interceptor)
			}
		}
	}
	for _, entry := range m.Types {
		add(entry.Bindings)
		for _, method := range entry.Methods {
			add(method.Bindings)
		}
	}
	return names
}

func (b BindingEntry) binding() contracts.Binding {
	binding := contracts.Bind(b.Interceptor, b.Args...)
	if b.Priority != nil {
		binding = binding.WithPriority(uint8(*b.Priority))
	}
	return binding
}
