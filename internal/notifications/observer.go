package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quill/internal/logging"
	"quill/internal/pipeline"
)

const sendTimeout = 15 * time.Second

// Observer forwards completed and failed pipeline events to svc. Questions
// maps a sample number to its text for the processed message and may be
// nil. Cancelled runs are not reported.
func Observer(svc Service, questions func(number int) string, logger *slog.Logger) pipeline.Observer {
	logger = logging.NewComponentLogger(logger, "notifications")
	return pipeline.ObserverFunc(func(ctx context.Context, event pipeline.Event) {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()

		var err error
		switch event.Type {
		case pipeline.EventCompleted:
			var text string
			if questions != nil {
				text = questions(event.SampleNumber)
			}
			err = svc.NotifySampleProcessed(sendCtx, event.SampleNumber, text)
		case pipeline.EventFailed:
			if errors.Is(event.Err, context.Canceled) {
				return
			}
			err = svc.NotifySampleFailed(sendCtx, event.SampleNumber, string(event.Stage), event.Err)
		default:
			return
		}
		if err != nil {
			logging.WarnWithContext(logger, "notification failed", "notification_failed",
				logging.String(logging.FieldSampleID, event.SampleID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			)
		}
	})
}
