// Package audit is the boundary to the platform audit trail. The subsystem
// only appends; querying and retention belong to the consumer side.
package audit

import (
	"context"

	"github.com/rs/zerolog"
)

type Entry struct {
	AccountID  string
	Action     string
	Resource   string
	ResourceID string
	Details    map[string]any
	Severity   string
}

// Sink accepts entries fire-and-forget: implementations must never fail the
// calling request, and Record must not block on downstream I/O.
type Sink interface {
	Record(ctx context.Context, e Entry)
}

// ZerologSink writes audit entries as structured log lines. It is the default
// sink; deployments with a dedicated audit pipeline substitute their own.
type ZerologSink struct {
	log zerolog.Logger
}

func NewZerologSink(log zerolog.Logger) *ZerologSink {
	return &ZerologSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *ZerologSink) Record(_ context.Context, e Entry) {
	ev := s.log.Info()
	if e.Severity == "critical" || e.Severity == "warning" {
		ev = s.log.Warn()
	}
	ev.Str("account_id", e.AccountID).
		Str("action", e.Action).
		Str("resource", e.Resource).
		Str("resource_id", e.ResourceID).
		Str("severity", e.Severity).
		Fields(e.Details).
		Msg("audit")
}

// NopSink discards everything. Used in tests that do not assert on audit.
type NopSink struct{}

func (NopSink) Record(context.Context, Entry) {}
