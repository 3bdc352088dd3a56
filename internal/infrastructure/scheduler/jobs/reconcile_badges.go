// Package jobs contains the scheduled jobs of the missions worker.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/application/saga"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE BADGES JOB
// ══════════════════════════════════════════════════════════════════════════════

// StudentLister lists every student that has published work.
type StudentLister interface {
	ListStudentsWithPublished(ctx context.Context) ([]string, error)
}

// Awarder runs the badge award flow for one student.
type Awarder interface {
	Award(ctx context.Context, input saga.BadgeAwardInput) (*saga.BadgeAwardResult, error)
}

// ReconcileBadgesJob re-evaluates badges for every student with published
// projects. It repairs awards lost when the post-approval evaluation failed
// and grants badges added to the catalogue after the work was published.
// Evaluation is idempotent, so a run over an up-to-date student awards nothing.
type ReconcileBadgesJob struct {
	students StudentLister
	awarder  Awarder
	logger   *zap.Logger
	config   ReconcileBadgesConfig

	lastStats atomic.Pointer[ReconcileStats]
}

// ReconcileBadgesConfig contains configuration for the job.
type ReconcileBadgesConfig struct {
	// Concurrency is the number of students evaluated in parallel.
	Concurrency int

	// MaxFailureRate fails the run when a larger share of students errors.
	MaxFailureRate float64
}

// DefaultReconcileBadgesConfig returns sensible defaults.
func DefaultReconcileBadgesConfig() ReconcileBadgesConfig {
	return ReconcileBadgesConfig{
		Concurrency:    4,
		MaxFailureRate: 0.5,
	}
}

// ReconcileStats contains statistics from one run.
type ReconcileStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	TotalStudents int
	Evaluated     int
	Failed        int
	BadgesAwarded int
}

// NewReconcileBadgesJob creates the job.
func NewReconcileBadgesJob(students StudentLister, awarder Awarder, log *zap.Logger, config ReconcileBadgesConfig) *ReconcileBadgesJob {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.MaxFailureRate <= 0 {
		config.MaxFailureRate = 0.5
	}
	return &ReconcileBadgesJob{
		students: students,
		awarder:  awarder,
		logger:   logger.OrNop(log).With(zap.String("job", "reconcile_badges")),
		config:   config,
	}
}

// Name returns the job name.
func (j *ReconcileBadgesJob) Name() string {
	return "reconcile_badges"
}

// Description returns a human-readable description.
func (j *ReconcileBadgesJob) Description() string {
	return "Re-evaluates badge criteria for every student with published projects"
}

// LastStats returns the statistics of the last finished run, nil before the first.
func (j *ReconcileBadgesJob) LastStats() *ReconcileStats {
	return j.lastStats.Load()
}

// Run executes the job.
func (j *ReconcileBadgesJob) Run(ctx context.Context) error {
	stats := &ReconcileStats{StartedAt: time.Now()}
	defer func() {
		stats.CompletedAt = time.Now()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	studentIDs, err := j.students.ListStudentsWithPublished(ctx)
	if err != nil {
		return fmt.Errorf("failed to list students: %w", err)
	}
	stats.TotalStudents = len(studentIDs)
	if len(studentIDs) == 0 {
		return nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, j.config.Concurrency)
	)

	for _, id := range studentIDs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		}

		wg.Add(1)
		go func(studentID string) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := j.awarder.Award(ctx, saga.BadgeAwardInput{StudentID: studentID})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				j.logger.Warn("badge reconciliation failed", logger.StudentID(studentID), zap.Error(err))
				return
			}
			stats.Evaluated++
			if n := len(res.Awarded); n > 0 {
				stats.BadgesAwarded += n
				j.logger.Info("missing badges awarded",
					logger.StudentID(studentID),
					zap.Strings("badge_ids", res.AwardedIDs()),
				)
			}
		}(id)
	}
	wg.Wait()

	j.logger.Info("badge reconciliation completed",
		zap.Int("students", stats.TotalStudents),
		zap.Int("evaluated", stats.Evaluated),
		zap.Int("failed", stats.Failed),
		zap.Int("awarded", stats.BadgesAwarded),
	)

	if rate := float64(stats.Failed) / float64(stats.TotalStudents); rate > j.config.MaxFailureRate {
		return fmt.Errorf("badge reconciliation failed for %d of %d students", stats.Failed, stats.TotalStudents)
	}
	return nil
}
