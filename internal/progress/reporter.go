// Package progress delivers job progress snapshots to observers. Delivery is
// best-effort: a failed publish is logged and counted, never returned.
package progress

import (
	"context"

	"github.com/timmy/subtitles/internal/domain"
	"github.com/timmy/subtitles/internal/logger"
	"github.com/timmy/subtitles/internal/metrics"
)

// Publisher is one progress transport.
type Publisher interface {
	Publish(ctx context.Context, jobID string, snapshot domain.ProgressSnapshot) error
	Name() string
}

// Reporter fans a snapshot out to every publisher and swallows their errors.
type Reporter struct {
	publishers []Publisher
	logger     *logger.Logger
}

// NewReporter creates a Reporter over the given publishers.
func NewReporter(log *logger.Logger, publishers ...Publisher) *Reporter {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Reporter{publishers: publishers, logger: log}
}

func (r *Reporter) log(ctx context.Context) *logger.Logger {
	return logger.FromContextOr(ctx, r.logger)
}

// Publish sends snapshot to every publisher in order.
func (r *Reporter) Publish(ctx context.Context, jobID string, snapshot domain.ProgressSnapshot) {
	for _, p := range r.publishers {
		if err := p.Publish(ctx, jobID, snapshot); err != nil {
			metrics.ProgressPublishFailed(p.Name())
			r.log(ctx).WithError(err).WithFields(logger.Fields{
				logger.FieldJobID: jobID,
				"transport":       p.Name(),
			}).Warn("Failed to publish progress")
		}
	}
}

// LogPublisher writes snapshots to the structured log at debug level.
type LogPublisher struct{}

func (LogPublisher) Name() string { return "log" }

func (LogPublisher) Publish(ctx context.Context, jobID string, s domain.ProgressSnapshot) error {
	logger.With(logger.Fields{
		logger.FieldJobID:  jobID,
		logger.FieldStatus: string(s.Status),
		"percentage":       s.Percentage,
	}).Debug(ctx, "Progress: %s", s.CurrentStep)
	return nil
}
