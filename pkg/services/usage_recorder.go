package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/menkyo-prep/sign-engine/pkg/apperrors"
	"github.com/menkyo-prep/sign-engine/pkg/database"
	"github.com/menkyo-prep/sign-engine/pkg/logging"
	"github.com/menkyo-prep/sign-engine/pkg/repositories"
)

// UsageRecorder counts how often catalog images are served.
type UsageRecorder interface {
	// RecordUsage schedules an increment and returns immediately.
	// Failures are logged, never returned.
	RecordUsage(ctx context.Context, imageID uuid.UUID)

	// Increment bumps the counter synchronously and returns the new count.
	// The caller's context must carry a database scope.
	Increment(ctx context.Context, imageID uuid.UUID) (int64, error)

	// Wait blocks until scheduled increments have finished.
	Wait()
}

type usageRecorder struct {
	signRepo repositories.SignImageRepository
	getScope database.ScopeFunc
	timeout  time.Duration
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewUsageRecorder creates a new UsageRecorder. Background increments run
// with their own connection scope, bounded by timeout.
func NewUsageRecorder(
	signRepo repositories.SignImageRepository,
	getScope database.ScopeFunc,
	timeout time.Duration,
	logger *zap.Logger,
) UsageRecorder {
	return &usageRecorder{
		signRepo: signRepo,
		getScope: getScope,
		timeout:  timeout,
		logger:   logger.Named("usage-recorder"),
	}
}

var _ UsageRecorder = (*usageRecorder)(nil)

func (u *usageRecorder) RecordUsage(ctx context.Context, imageID uuid.UUID) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()

		// The request's connection is released when the request ends, so
		// the increment must not inherit its scope or its cancellation.
		bgCtx, cancel := context.WithTimeout(context.Background(), u.timeout)
		defer cancel()

		scopedCtx, cleanup, err := u.getScope(bgCtx)
		if err != nil {
			u.logger.Warn("Failed to acquire scope for usage accounting",
				zap.String("image_id", imageID.String()),
				zap.String("error", logging.SanitizeError(err)))
			return
		}
		defer cleanup()

		if _, err := u.Increment(scopedCtx, imageID); err != nil {
			u.logger.Warn("Failed to record image usage",
				zap.String("image_id", imageID.String()),
				zap.String("error", logging.SanitizeError(err)))
		}
	}()
}

// Increment prefers the atomic store function. If that is unavailable it
// falls back to read-modify-write, which can lose concurrent increments;
// the count is a popularity hint, so that is tolerated.
func (u *usageRecorder) Increment(ctx context.Context, imageID uuid.UUID) (int64, error) {
	count, err := u.signRepo.IncrementUsage(ctx, imageID)
	if err == nil {
		return count, nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return 0, err
	}

	u.logger.Debug("Atomic usage increment unavailable, using read-modify-write",
		zap.String("image_id", imageID.String()),
		zap.String("error", logging.SanitizeError(err)))

	current, err := u.signRepo.GetUsageCount(ctx, imageID)
	if err != nil {
		return 0, fmt.Errorf("failed to read usage count: %w", err)
	}
	if err := u.signRepo.SetUsageCount(ctx, imageID, current+1); err != nil {
		return 0, fmt.Errorf("failed to write usage count: %w", err)
	}
	return current + 1, nil
}

func (u *usageRecorder) Wait() {
	u.wg.Wait()
}
