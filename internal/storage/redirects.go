package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"docsplatform/internal/models"
)

// CreateRedirect inserts a redirect at the requested position, shifting the
// project's later redirects down. Without a position it is appended.
func (s *Storage) CreateRedirect(ctx context.Context, params CreateRedirectParams) (models.Redirect, error) {
	var redirect models.Redirect
	err := s.mutate(func(data *dataset) error {
		if _, ok := data.Projects[params.ProjectID]; !ok {
			return fmt.Errorf("project %d: %w", params.ProjectID, ErrNotFound)
		}
		siblings := projectRedirects(data, params.ProjectID)
		position := len(siblings)
		if params.Position != nil {
			position = clampPosition(*params.Position, len(siblings))
		}
		status := params.HTTPStatus
		if status == 0 {
			status = http.StatusFound
		}
		now := time.Now().UTC()
		redirect = models.Redirect{
			ID:            data.nextID("redirects"),
			ProjectID:     params.ProjectID,
			Type:          params.Type,
			FromURL:       strings.TrimSpace(params.FromURL),
			ToURL:         strings.TrimSpace(params.ToURL),
			HTTPStatus:    status,
			ForceRedirect: params.ForceRedirect,
			Enabled:       params.Enabled,
			Description:   strings.TrimSpace(params.Description),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		renumberRedirects(data, insertRedirect(siblings, redirect, position))
		redirect = data.Redirects[redirect.ID]
		return nil
	})
	if err != nil {
		return models.Redirect{}, err
	}
	return redirect, nil
}

func (s *Storage) GetRedirect(ctx context.Context, id int64) (models.Redirect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	redirect, ok := s.data.Redirects[id]
	if !ok {
		return models.Redirect{}, ErrNotFound
	}
	return redirect, nil
}

// ListRedirects returns the project's redirects in evaluation order.
func (s *Storage) ListRedirects(ctx context.Context, projectID int64) ([]models.Redirect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return projectRedirects(&s.data, projectID), nil
}

func (s *Storage) UpdateRedirect(ctx context.Context, id int64, update RedirectUpdate) (models.Redirect, error) {
	var redirect models.Redirect
	err := s.mutate(func(data *dataset) error {
		existing, ok := data.Redirects[id]
		if !ok {
			return ErrNotFound
		}
		applyRedirectUpdate(&existing, update)
		data.Redirects[id] = existing

		if update.Position != nil && *update.Position != existing.Position {
			siblings := projectRedirects(data, existing.ProjectID)
			renumberRedirects(data, moveRedirect(siblings, existing, *update.Position))
		}
		redirect = data.Redirects[id]
		return nil
	})
	if err != nil {
		return models.Redirect{}, err
	}
	return redirect, nil
}

// DeleteRedirect removes the redirect and closes the gap in positions.
func (s *Storage) DeleteRedirect(ctx context.Context, id int64) error {
	return s.mutate(func(data *dataset) error {
		existing, ok := data.Redirects[id]
		if !ok {
			return ErrNotFound
		}
		delete(data.Redirects, id)
		renumberRedirects(data, projectRedirects(data, existing.ProjectID))
		return nil
	})
}

func applyRedirectUpdate(redirect *models.Redirect, update RedirectUpdate) {
	if update.Type != nil {
		redirect.Type = *update.Type
	}
	if update.FromURL != nil {
		redirect.FromURL = strings.TrimSpace(*update.FromURL)
	}
	if update.ToURL != nil {
		redirect.ToURL = strings.TrimSpace(*update.ToURL)
	}
	if update.HTTPStatus != nil {
		redirect.HTTPStatus = *update.HTTPStatus
	}
	if update.ForceRedirect != nil {
		redirect.ForceRedirect = *update.ForceRedirect
	}
	if update.Enabled != nil {
		redirect.Enabled = *update.Enabled
	}
	if update.Description != nil {
		redirect.Description = strings.TrimSpace(*update.Description)
	}
	redirect.UpdatedAt = time.Now().UTC()
}

// moveRedirect returns siblings reordered so target sits at position.
func moveRedirect(siblings []models.Redirect, target models.Redirect, position int) []models.Redirect {
	ordered := make([]models.Redirect, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.ID != target.ID {
			ordered = append(ordered, sibling)
		}
	}
	return insertRedirect(ordered, target, clampPosition(position, len(ordered)))
}

func insertRedirect(ordered []models.Redirect, redirect models.Redirect, position int) []models.Redirect {
	out := make([]models.Redirect, 0, len(ordered)+1)
	out = append(out, ordered[:position]...)
	out = append(out, redirect)
	return append(out, ordered[position:]...)
}

func projectRedirects(data *dataset, projectID int64) []models.Redirect {
	var out []models.Redirect
	for _, redirect := range data.Redirects {
		if redirect.ProjectID == projectID {
			out = append(out, redirect)
		}
	}
	sortSlice(out, func(a, b models.Redirect) bool {
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
	return out
}

func renumberRedirects(data *dataset, ordered []models.Redirect) {
	for i, redirect := range ordered {
		redirect.Position = i
		data.Redirects[redirect.ID] = redirect
	}
}

func clampPosition(position, length int) int {
	if position < 0 {
		return 0
	}
	if position > length {
		return length
	}
	return position
}

func (s *Storage) CreateEnvironmentVariable(ctx context.Context, params CreateEnvironmentVariableParams) (models.EnvironmentVariable, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return models.EnvironmentVariable{}, errors.New("environment variable name is required")
	}
	if len(params.Value) > MaxEnvironmentVariableValueLength {
		return models.EnvironmentVariable{}, fmt.Errorf("environment variable value exceeds %d characters", MaxEnvironmentVariableValueLength)
	}

	var variable models.EnvironmentVariable
	err := s.mutate(func(data *dataset) error {
		if _, ok := data.Projects[params.ProjectID]; !ok {
			return fmt.Errorf("project %d: %w", params.ProjectID, ErrNotFound)
		}
		for _, existing := range data.EnvironmentVariables {
			if existing.ProjectID == params.ProjectID && existing.Name == name {
				return &ConflictError{Field: "name", Message: "there is already a variable with this name for this project"}
			}
		}
		now := time.Now().UTC()
		variable = models.EnvironmentVariable{
			ID:         data.nextID("environmentVariables"),
			ProjectID:  params.ProjectID,
			Name:       name,
			Value:      params.Value,
			Public:     params.Public,
			CreatedAt:  now,
			ModifiedAt: now,
		}
		data.EnvironmentVariables[variable.ID] = variable
		return nil
	})
	if err != nil {
		return models.EnvironmentVariable{}, err
	}
	return variable, nil
}

func (s *Storage) GetEnvironmentVariable(ctx context.Context, id int64) (models.EnvironmentVariable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	variable, ok := s.data.EnvironmentVariables[id]
	if !ok {
		return models.EnvironmentVariable{}, ErrNotFound
	}
	return variable, nil
}

func (s *Storage) ListEnvironmentVariables(ctx context.Context, projectID int64) ([]models.EnvironmentVariable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.EnvironmentVariable
	for _, variable := range s.data.EnvironmentVariables {
		if variable.ProjectID == projectID {
			out = append(out, variable)
		}
	}
	sortSlice(out, func(a, b models.EnvironmentVariable) bool { return a.ID < b.ID })
	return out, nil
}

func (s *Storage) DeleteEnvironmentVariable(ctx context.Context, id int64) error {
	return s.mutate(func(data *dataset) error {
		if _, ok := data.EnvironmentVariables[id]; !ok {
			return ErrNotFound
		}
		delete(data.EnvironmentVariables, id)
		return nil
	})
}
