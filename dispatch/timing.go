package dispatch

import (
	"context"
	"time"

	"github.com/glimte/aspect-go/contracts"
)

// TimingRecord is the elapsed time of one real call
type TimingRecord struct {
	ID           string        `json:"id"`
	InvocationID string        `json:"invocationId"`
	Type         string        `json:"type"`
	Method       string        `json:"method"`
	StartedAt    time.Time     `json:"startedAt"`
	Elapsed      time.Duration `json:"elapsedNs"`
	Variant      string        `json:"variant"`
	Failed       bool          `json:"failed"`
}

// TimingRecorder receives timing records of methods declared with
// contracts.TimingRecord
type TimingRecorder interface {
	RecordTiming(ctx context.Context, record TimingRecord) error
}

// TimingRecorderFunc is a function adapter for TimingRecorder
type TimingRecorderFunc func(ctx context.Context, record TimingRecord) error

// RecordTiming implements TimingRecorder
func (f TimingRecorderFunc) RecordTiming(ctx context.Context, record TimingRecord) error {
	return f(ctx, record)
}

func newTimingRecord(inv *invocation, variant contracts.Variant, started time.Time, elapsed time.Duration, failed bool) TimingRecord {
	method := inv.Method()
	return TimingRecord{
		ID:           newRecordID(),
		InvocationID: inv.ID(),
		Type:         contracts.TypeName(method.DeclaringType),
		Method:       method.Name,
		StartedAt:    started,
		Elapsed:      elapsed,
		Variant:      variant.String(),
		Failed:       failed,
	}
}
