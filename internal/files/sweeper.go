package files

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// orphanGrace keeps blobs whose record is still being written out of the
// orphan pass.
const orphanGrace = time.Hour

var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myshare_sweep_runs_total",
		Help: "Total number of expiry sweeps",
	})

	sweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myshare_sweep_expired_total",
		Help: "Total number of expired files removed by the sweeper",
	})

	sweepOrphansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myshare_sweep_orphans_total",
		Help: "Total number of orphan blobs removed by the sweeper",
	})

	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "myshare_sweep_errors_total",
		Help: "Total number of errors during expiry sweeps",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "myshare_sweep_duration_seconds",
		Help:    "Duration of expiry sweeps in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult is the outcome of a single sweep
type SweepResult struct {
	ExpiredCount int
	OrphanCount  int
	Errors       int
	Duration     time.Duration
}

// Sweeper removes files whose records have left the retention window.
// The record goes first, then the blob, so a failed blob removal leaves an
// orphan for the next orphan pass rather than a dangling record.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper for the service's storage and repository
func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Start runs the sweeper in a background goroutine until ctx is done or
// Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("Sweeper started",
		slog.String("interval", s.interval.String()),
		slog.String("retention", s.service.retention.String()),
	)
}

// Stop cancels the background goroutine and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("Sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep. Concurrent calls are serialized.
func (s *Sweeper) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	cutoff := s.service.now().Add(-s.service.retention)

	expired, errs := s.removeExpired(ctx, cutoff)
	result.ExpiredCount = expired
	result.Errors += errs

	orphans, err := s.service.storage.RemoveOlderThan(cutoff.Add(-orphanGrace))
	if err != nil {
		s.logger.Error("Failed to remove orphan blobs", slog.String("error", err.Error()))
		result.Errors++
	}
	result.OrphanCount = orphans

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepExpiredTotal.Add(float64(result.ExpiredCount))
	sweepOrphansTotal.Add(float64(result.OrphanCount))
	sweepErrorsTotal.Add(float64(result.Errors))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Sweep finished",
		slog.Int("expired", result.ExpiredCount),
		slog.Int("orphans", result.OrphanCount),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

func (s *Sweeper) removeExpired(ctx context.Context, cutoff time.Time) (removed, errs int) {
	records, err := s.service.repo.ListExpired(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to list expired files", slog.String("error", err.Error()))
		return 0, 1
	}

	for _, file := range records {
		// A native TTL may have removed the record already.
		if err := s.service.repo.Delete(ctx, file.ID); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Error("Failed to delete expired record",
				slog.String("file_id", file.ID),
				slog.String("error", err.Error()),
			)
			errs++
			continue
		}

		if err := s.service.storage.Delete(file.StoredName); err != nil {
			s.logger.Error("Failed to delete expired blob",
				slog.String("file_id", file.ID),
				slog.String("stored_name", file.StoredName),
				slog.String("error", err.Error()),
			)
			errs++
			continue
		}

		s.service.publish(ctx, SubjectExpired, file)

		s.logger.Debug("Expired file removed",
			slog.String("file_id", file.ID),
			slog.String("filename", file.OriginalName),
		)
		removed++
	}

	return removed, errs
}
