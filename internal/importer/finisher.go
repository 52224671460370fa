// Package importer finishes a project import: it discovers the repository's
// refs, seeds the project's versions and asks for the first build. Every
// step is best effort; failures are logged and counted, never returned to
// the API caller.
package importer

import (
	"context"
	"errors"
	"log/slog"

	"docsplatform/internal/builds"
	"docsplatform/internal/models"
	"docsplatform/internal/observability/logging"
	"docsplatform/internal/storage"
)

// Import outcomes reported to the outcome hook.
const (
	OutcomeCompleted   = "completed"
	OutcomeProbeFailed = "probe_failed"
	OutcomeFailed      = "failed"
)

// Store is the storage surface the finisher needs.
type Store interface {
	UpdateProject(ctx context.Context, id int64, update storage.ProjectUpdate) (models.Project, error)
	CreateVersion(ctx context.Context, params storage.CreateVersionParams) (models.Version, error)
	ListVersions(ctx context.Context, projectID int64) ([]models.Version, error)
}

// Trigger requests a build.
type Trigger interface {
	Trigger(ctx context.Context, project models.Project, version models.Version) (builds.Result, error)
}

type Option func(*Finisher)

// WithProber replaces the ref prober. Nil disables probing.
func WithProber(prober Prober) Option {
	return func(f *Finisher) { f.prober = prober }
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Finisher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithOutcomeHook registers fn to observe every import outcome.
func WithOutcomeHook(fn func(outcome string)) Option {
	return func(f *Finisher) { f.observe = fn }
}

// Finisher runs the post-import hook.
type Finisher struct {
	store   Store
	trigger Trigger
	prober  Prober
	logger  *slog.Logger
	observe func(string)
}

func NewFinisher(store Store, trigger Trigger, opts ...Option) (*Finisher, error) {
	if store == nil {
		return nil, errors.New("import store is required")
	}
	f := &Finisher{
		store:   store,
		trigger: trigger,
		prober:  GitProber{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.WithComponent(f.logger, "importer")
	return f, nil
}

// FinishImport seeds versions for project and triggers the first build of
// the latest version.
func (f *Finisher) FinishImport(ctx context.Context, project models.Project) {
	logger := logging.WithContext(ctx, f.logger).With("project", project.Slug)
	outcome := OutcomeCompleted
	defer func() {
		if f.observe != nil {
			f.observe(outcome)
		}
	}()

	var refs Refs
	if f.prober != nil && project.Repository.URL != "" {
		probed, err := f.prober.Probe(ctx, project.Repository.URL)
		if err != nil {
			logger.Warn("repository probe failed", "repository", project.Repository.URL, "error", err)
			outcome = OutcomeProbeFailed
		} else {
			refs = probed
		}
	}

	if refs.DefaultBranch != "" && refs.DefaultBranch != project.DefaultBranch {
		branch := refs.DefaultBranch
		updated, err := f.store.UpdateProject(ctx, project.ID, storage.ProjectUpdate{DefaultBranch: &branch})
		if err != nil {
			logger.Error("record default branch", "error", err)
			outcome = OutcomeFailed
		} else {
			project = updated
		}
	}

	latest, err := f.seedVersions(ctx, project, refs)
	if err != nil {
		logger.Error("seed versions", "error", err)
		outcome = OutcomeFailed
		return
	}

	if f.trigger == nil {
		return
	}
	result, err := f.trigger.Trigger(ctx, project, latest)
	if err != nil {
		logger.Error("trigger first build", "version", latest.Slug, "error", err)
		outcome = OutcomeFailed
		return
	}
	if !result.Triggered {
		logger.Info("first build declined", "version", latest.Slug, "reason", result.Reason)
	}
}

// seedVersions creates the active latest version plus inactive branch and
// tag versions, skipping slugs the project already has.
func (f *Finisher) seedVersions(ctx context.Context, project models.Project, refs Refs) (models.Version, error) {
	existing, err := f.store.ListVersions(ctx, project.ID)
	if err != nil {
		return models.Version{}, err
	}
	known := make(map[string]models.Version, len(existing))
	for _, version := range existing {
		known[version.Slug] = version
	}

	identifier := refs.DefaultBranch
	if identifier == "" {
		identifier = project.DefaultBranch
	}
	latest, ok := known[models.LatestVersionSlug]
	if !ok {
		latest, err = f.store.CreateVersion(ctx, storage.CreateVersionParams{
			ProjectID:   project.ID,
			Slug:        models.LatestVersionSlug,
			VerboseName: models.LatestVersionSlug,
			Identifier:  identifier,
			Type:        models.VersionTypeBranch,
			Active:      true,
			Privacy:     project.Privacy,
		})
		if err != nil {
			return models.Version{}, err
		}
		known[latest.Slug] = latest
	}

	seed := func(name, kind string) {
		slug := storage.VersionSlug(name)
		if slug == "" {
			return
		}
		if _, ok := known[slug]; ok {
			return
		}
		version, err := f.store.CreateVersion(ctx, storage.CreateVersionParams{
			ProjectID:   project.ID,
			Slug:        slug,
			VerboseName: name,
			Identifier:  name,
			Type:        kind,
			Privacy:     project.Privacy,
		})
		if err != nil {
			f.logger.Warn("seed version", "project", project.Slug, "version", name, "error", err)
			return
		}
		known[slug] = version
	}
	for _, branch := range refs.Branches {
		seed(branch, models.VersionTypeBranch)
	}
	for _, tag := range refs.Tags {
		seed(tag, models.VersionTypeTag)
	}
	return latest, nil
}
