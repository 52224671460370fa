// Package builds admits build requests and hands them to the execution
// engine. The gateway guarantees at most one in-flight build per project
// version: admission is serialized with a Locker and checked against the
// builds already recorded in storage.
package builds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"docsplatform/internal/models"
	"docsplatform/internal/observability/logging"
	"docsplatform/internal/storage"
)

// Trigger outcomes reported to the outcome hook.
const (
	OutcomeTriggered       = "triggered"
	OutcomeProjectDisabled = "project_disabled"
	OutcomeVersionInactive = "version_inactive"
	OutcomeInFlight        = "in_flight"
	OutcomeError           = "error"
)

const (
	defaultStaleAfter = 3 * time.Hour
	defaultLockTTL    = 30 * time.Second
)

// Store is the storage surface the gateway needs.
type Store interface {
	CreateBuild(ctx context.Context, params storage.CreateBuildParams) (models.Build, error)
	ListBuilds(ctx context.Context, query storage.BuildQuery) ([]models.Build, error)
	UpdateBuild(ctx context.Context, id int64, update storage.BuildUpdate) (models.Build, error)
	UpdateVersion(ctx context.Context, id int64, update storage.VersionUpdate) (models.Version, error)
}

// Result describes a trigger decision. Build is set only when Triggered.
type Result struct {
	Triggered bool
	Reason    string
	Build     *models.Build
}

type Option func(*Gateway)

func WithLocker(locker Locker) Option {
	return func(g *Gateway) {
		if locker != nil {
			g.locker = locker
		}
	}
}

func WithQueue(queue Queue) Option {
	return func(g *Gateway) {
		if queue != nil {
			g.queue = queue
		}
	}
}

// WithStaleAfter sets the age past which an unfinished build no longer
// blocks new triggers.
func WithStaleAfter(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.staleAfter = d
		}
	}
}

func WithLockTTL(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.lockTTL = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithOutcomeHook registers fn to observe every trigger outcome.
func WithOutcomeHook(fn func(outcome string)) Option {
	return func(g *Gateway) {
		g.observe = fn
	}
}

func withClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// Gateway is the single entry point for creating builds.
type Gateway struct {
	store      Store
	locker     Locker
	queue      Queue
	staleAfter time.Duration
	lockTTL    time.Duration
	logger     *slog.Logger
	observe    func(string)
	now        func() time.Time
}

// NewGateway returns a gateway with in-process admission and queueing unless
// overridden by opts.
func NewGateway(store Store, opts ...Option) (*Gateway, error) {
	if store == nil {
		return nil, errors.New("build store is required")
	}
	g := &Gateway{
		store:      store,
		locker:     NewMemoryLocker(),
		queue:      NewMemoryQueue(),
		staleAfter: defaultStaleAfter,
		lockTTL:    defaultLockTTL,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.WithComponent(g.logger, "builds")
	return g, nil
}

// Trigger admits a build for version unless one is already in flight.
// Declines are reported through Result; err is reserved for failures.
func (g *Gateway) Trigger(ctx context.Context, project models.Project, version models.Version) (Result, error) {
	result, err := g.trigger(ctx, project, version)
	outcome := result.Reason
	if err != nil {
		outcome = OutcomeError
		logging.WithContext(ctx, g.logger).Error("build trigger failed",
			"project", project.Slug,
			"version", version.Slug,
			"error", err)
	}
	if g.observe != nil {
		g.observe(outcome)
	}
	return result, err
}

func (g *Gateway) trigger(ctx context.Context, project models.Project, version models.Version) (Result, error) {
	if version.ProjectID != project.ID {
		return Result{}, fmt.Errorf("version %d does not belong to project %d", version.ID, project.ID)
	}
	if project.Disabled {
		return Result{Reason: OutcomeProjectDisabled}, nil
	}
	if !version.Active {
		return Result{Reason: OutcomeVersionInactive}, nil
	}

	lock, acquired, err := g.locker.TryLock(ctx, lockKey(project.ID, version.ID), g.lockTTL)
	if err != nil {
		return Result{}, err
	}
	if !acquired {
		return Result{Reason: OutcomeInFlight}, nil
	}
	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			g.logger.Warn("release build lock", "project", project.Slug, "version", version.Slug, "error", err)
		}
	}()

	inFlight, err := g.inFlight(ctx, version.ID)
	if err != nil {
		return Result{}, err
	}
	if inFlight {
		return Result{Reason: OutcomeInFlight}, nil
	}

	build, err := g.store.CreateBuild(ctx, storage.CreateBuildParams{
		ProjectID: project.ID,
		VersionID: version.ID,
		State:     models.BuildStateTriggered,
		Commit:    version.Identifier,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create build: %w", err)
	}
	job := Job{
		BuildID:     build.ID,
		ProjectID:   project.ID,
		ProjectSlug: project.Slug,
		VersionID:   version.ID,
		VersionSlug: version.Slug,
		Identifier:  version.Identifier,
		QueuedAt:    g.now().UTC(),
	}
	if err := g.queue.Enqueue(ctx, job); err != nil {
		g.cancel(context.WithoutCancel(ctx), build, "build could not be queued")
		return Result{}, fmt.Errorf("enqueue build %d: %w", build.ID, err)
	}
	logging.WithContext(ctx, g.logger).Info("build triggered",
		"project", project.Slug,
		"version", version.Slug,
		"build", build.ID)
	return Result{Triggered: true, Reason: OutcomeTriggered, Build: &build}, nil
}

// inFlight reports whether version has an unfinished build younger than the
// stale cutoff.
func (g *Gateway) inFlight(ctx context.Context, versionID int64) (bool, error) {
	running := true
	builds, err := g.store.ListBuilds(ctx, storage.BuildQuery{VersionID: versionID, Running: &running})
	if err != nil {
		return false, fmt.Errorf("list running builds: %w", err)
	}
	cutoff := g.now().Add(-g.staleAfter)
	for _, build := range builds {
		if build.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

// PostSave reconciles builds after a version update. Activation triggers a
// build; deactivation marks the version unbuilt and cancels in-flight builds.
func (g *Gateway) PostSave(ctx context.Context, project models.Project, version models.Version, wasActive bool) error {
	switch {
	case !wasActive && version.Active:
		_, err := g.Trigger(ctx, project, version)
		return err
	case wasActive && !version.Active:
		built := false
		if _, err := g.store.UpdateVersion(ctx, version.ID, storage.VersionUpdate{Built: &built}); err != nil {
			return fmt.Errorf("mark version unbuilt: %w", err)
		}
		running := true
		builds, err := g.store.ListBuilds(ctx, storage.BuildQuery{VersionID: version.ID, Running: &running})
		if err != nil {
			return fmt.Errorf("list running builds: %w", err)
		}
		for _, build := range builds {
			g.cancel(ctx, build, "version was deactivated")
		}
	}
	return nil
}

func (g *Gateway) cancel(ctx context.Context, build models.Build, reason string) {
	state := models.BuildStateCancelled
	success := false
	finished := g.now().UTC()
	_, err := g.store.UpdateBuild(ctx, build.ID, storage.BuildUpdate{
		State:      &state,
		Success:    &success,
		Error:      &reason,
		FinishedAt: &finished,
	})
	if err != nil {
		g.logger.Warn("cancel build", "build", build.ID, "error", err)
	}
}

func lockKey(projectID, versionID int64) string {
	return strconv.FormatInt(projectID, 10) + ":" + strconv.FormatInt(versionID, 10)
}
