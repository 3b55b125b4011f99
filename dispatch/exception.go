package dispatch

import (
	"strings"

	"github.com/glimte/aspect-go/contracts"
	"github.com/glimte/aspect-go/logging"
)

// handleError applies the error policies to err raised by the real call of
// method, in declaration order. It returns nil when every matching policy
// ignored the error. A rethrow, or a match inactive in the current variant,
// ends the walk and returns err.
func (d *Dispatcher) handleError(call contracts.Call, method string, err error, handlers []*contracts.HandleError) error {
	suppressed := false
	for _, policy := range handlers {
		if !policy.Matches(err) {
			continue
		}

		if !policy.Variant.ActiveIn(d.variant) {
			return err
		}

		extra := strings.TrimSpace(policy.ExtraMessage)

		if policy.Log {
			logging.Write(d.logger, logging.LevelError, failureMessage(method, extra, err))
		}

		if policy.ReturnValue != nil {
			call.SetReturnValue(policy.ReturnValue)
		}

		switch policy.Strategy {
		case contracts.StrategyIgnore:
			suppressed = true
		default:
			if extra != "" {
				if carrier, ok := err.(contracts.DataCarrier); ok {
					if data := carrier.Data(); data != nil {
						data[contracts.ExtraMessageKey] = extra
					}
				}
			}
			return err
		}
	}

	if suppressed {
		return nil
	}
	return err
}

func failureMessage(method, extra string, err error) string {
	var b strings.Builder
	b.WriteString("method ")
	b.WriteString(method)
	b.WriteString(" failed.")
	if extra != "" {
		b.WriteString(" extra: ")
		b.WriteString(extra)
		b.WriteString(";")
	}
	b.WriteString(" error: ")
	b.WriteString(err.Error())
	return b.String()
}
