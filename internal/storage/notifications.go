package storage

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"docsplatform/internal/models"
)

func (s *Storage) CreateNotification(ctx context.Context, params CreateNotificationParams) (models.Notification, error) {
	if !params.AttachedTo.Kind.Valid() {
		return models.Notification{}, fmt.Errorf("unknown attachment kind %q", params.AttachedTo.Kind)
	}
	messageID := strings.TrimSpace(params.MessageID)
	if messageID == "" {
		return models.Notification{}, fmt.Errorf("notification message id is required")
	}
	state := params.State
	if state == "" {
		state = models.NotificationUnread
	}

	var notification models.Notification
	err := s.mutate(func(data *dataset) error {
		if !attachmentExists(data, params.AttachedTo) {
			return fmt.Errorf("attachment %s: %w", params.AttachedTo, ErrNotFound)
		}
		now := time.Now().UTC()
		notification = models.Notification{
			ID:          data.nextID("notifications"),
			MessageID:   messageID,
			State:       state,
			Dismissable: params.Dismissable,
			News:        params.News,
			AttachedTo:  params.AttachedTo,
			Format:      maps.Clone(params.Format),
			CreatedAt:   now,
			ModifiedAt:  now,
		}
		data.Notifications[notification.ID] = notification
		return nil
	})
	if err != nil {
		return models.Notification{}, err
	}
	return cloneNotification(notification), nil
}

func attachmentExists(data *dataset, target models.AttachedTo) bool {
	var ok bool
	switch target.Kind {
	case models.AttachedToUser:
		_, ok = data.Users[target.ID]
	case models.AttachedToProject:
		_, ok = data.Projects[target.ID]
	case models.AttachedToBuild:
		_, ok = data.Builds[target.ID]
	case models.AttachedToOrganization:
		_, ok = data.Organizations[target.ID]
	}
	return ok
}

func (s *Storage) GetNotification(ctx context.Context, id int64) (models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notification, ok := s.data.Notifications[id]
	if !ok {
		return models.Notification{}, ErrNotFound
	}
	return cloneNotification(notification), nil
}

// ListNotifications returns notifications attached to any of the query
// targets, newest first. Matching compares both the kind and the id.
func (s *Storage) ListNotifications(ctx context.Context, query NotificationQuery) ([]models.Notification, error) {
	if len(query.Targets) == 0 {
		return nil, nil
	}
	targets := make(map[models.AttachedTo]struct{}, len(query.Targets))
	for _, target := range query.Targets {
		targets[target] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for _, notification := range s.data.Notifications {
		if _, ok := targets[notification.AttachedTo]; ok {
			out = append(out, cloneNotification(notification))
		}
	}
	sortSlice(out, func(a, b models.Notification) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

func (s *Storage) UpdateNotification(ctx context.Context, id int64, update NotificationUpdate) (models.Notification, error) {
	var notification models.Notification
	err := s.mutate(func(data *dataset) error {
		existing, ok := data.Notifications[id]
		if !ok {
			return ErrNotFound
		}
		if update.State != nil {
			existing.State = *update.State
		}
		existing.ModifiedAt = time.Now().UTC()
		data.Notifications[id] = existing
		notification = existing
		return nil
	})
	if err != nil {
		return models.Notification{}, err
	}
	return cloneNotification(notification), nil
}
