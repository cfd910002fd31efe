package journal

import (
	"context"
	"log/slog"
	"time"

	"quill/internal/logging"
	"quill/internal/pipeline"
)

const writeTimeout = 5 * time.Second

// Observer records every pipeline event. Write failures are logged and
// never interrupt the pipeline.
func (s *Store) Observer(logger *slog.Logger) pipeline.Observer {
	logger = logging.NewComponentLogger(logger, "journal")
	return pipeline.ObserverFunc(func(ctx context.Context, event pipeline.Event) {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		if err := s.RecordEvent(writeCtx, event); err != nil {
			logging.WarnWithContext(logger, "journal write failed", "journal_write_failed",
				logging.String(logging.FieldSampleID, event.SampleID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "history may be incomplete; check the state directory"),
			)
		}
	})
}
