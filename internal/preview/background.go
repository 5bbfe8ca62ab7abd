package preview

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// BackgroundScheduler triggers background fill periodically.
type BackgroundScheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewBackgroundScheduler runs trigger every interval. Runs never overlap.
func NewBackgroundScheduler(interval time.Duration, trigger func(), logger *slog.Logger) (*BackgroundScheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		return nil, errors.ValidationError("background interval must be > 0").Build()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to create scheduler").Build()
	}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(trigger),
		gocron.WithName("background-fill"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to schedule background fill").Build()
	}
	return &BackgroundScheduler{scheduler: s, logger: logger}, nil
}

// Start begins the schedule.
func (b *BackgroundScheduler) Start() {
	b.logger.Info("Starting background fill scheduler")
	b.scheduler.Start()
}

// Stop shuts the scheduler down.
func (b *BackgroundScheduler) Stop() error {
	b.logger.Info("Stopping background fill scheduler")
	return b.scheduler.Shutdown()
}
