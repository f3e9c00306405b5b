package forward

import (
	"context"
	"log/slog"

	"github.com/mattjoyce/journalfwd/internal/journal"
)

// Submitter accepts a JSON payload for asynchronous delivery.
type Submitter interface {
	Submit(ctx context.Context, payload []byte) (string, error)
}

// Sink adapts a Submitter to journal.Sink for one stream. ctx is the
// stream's context and only bounds submission, never delivery.
type Sink struct {
	ctx       context.Context
	submitter Submitter
	logger    *slog.Logger
}

func NewSink(ctx context.Context, submitter Submitter, logger *slog.Logger) *Sink {
	return &Sink{ctx: ctx, submitter: submitter, logger: logger}
}

// Emit serializes e and submits it. Failures are logged and swallowed.
func (s *Sink) Emit(e *journal.Entry) {
	// Called directly: json.Marshal would re-escape <, > and & in values.
	payload, err := e.MarshalJSON()
	if err != nil {
		s.logger.Error("failed to encode entry", "fields", e.Len(), "error", err)
		return
	}
	s.logger.Debug("entry completed", "entry", string(payload))

	if _, err := s.submitter.Submit(s.ctx, payload); err != nil {
		s.logger.Warn("failed to submit entry", "error", err)
	}
}
