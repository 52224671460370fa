package api

import (
	"docsplatform/internal/access"
	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

// notificationTargets lists the attachments whose notifications a route may
// show.
type notificationTargets func(req *resource.Request) ([]models.AttachedTo, error)

// scopedTarget attaches notifications to the single parent the route
// resolved.
func scopedTarget(kind models.AttachmentKind, id func(resource.Scope) int64) notificationTargets {
	return func(req *resource.Request) ([]models.AttachedTo, error) {
		return []models.AttachedTo{{Kind: kind, ID: id(req.Scope)}}, nil
	}
}

func (h *Handler) mountNotifications() error {
	mounts := []struct {
		name    string
		object  string
		path    string
		parents func(*resource.Request) (resource.Scope, error)
		targets notificationTargets
	}{
		{
			name:    "notifications",
			object:  access.ObjectNotifications,
			path:    "/notifications/",
			targets: h.selfNotificationTargets,
		},
		{
			name:    "user-notifications",
			object:  access.ObjectUserNotifications,
			path:    "/users/{username}/notifications/",
			parents: h.userScope,
			targets: scopedTarget(models.AttachedToUser, func(s resource.Scope) int64 { return s.User.ID }),
		},
		{
			name:    "project-notifications",
			object:  access.ObjectProjectNotifications,
			path:    "/projects/{project_slug}/notifications/",
			parents: h.projectScope,
			targets: scopedTarget(models.AttachedToProject, func(s resource.Scope) int64 { return s.Project.ID }),
		},
		{
			name:    "build-notifications",
			object:  access.ObjectBuildNotifications,
			path:    "/projects/{project_slug}/builds/{build_pk}/notifications/",
			parents: h.buildScope,
			targets: scopedTarget(models.AttachedToBuild, func(s resource.Scope) int64 { return s.Build.ID }),
		},
		{
			name:    "organization-notifications",
			object:  access.ObjectOrganizationNotifications,
			path:    "/organizations/{organization_slug}/notifications/",
			parents: h.organizationScope,
			targets: scopedTarget(models.AttachedToOrganization, func(s resource.Scope) int64 { return s.Organization.ID }),
		},
	}
	for _, m := range mounts {
		if err := h.mountNotificationResource(m.name, m.object, m.path, m.parents, m.targets); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) mountNotificationResource(name, object, path string, parents func(*resource.Request) (resource.Scope, error), targets notificationTargets) error {
	detail := path + "{notification_pk}/{$}"
	return mount(h, resource.Config[models.Notification]{
		Name:    name,
		Object:  object,
		Parents: parents,
		List: func(req *resource.Request) ([]models.Notification, error) {
			attached, err := targets(req)
			if err != nil {
				return nil, err
			}
			if len(attached) == 0 {
				return nil, nil
			}
			return h.Store.ListNotifications(req.Context(), storage.NotificationQuery{Targets: attached})
		},
		Get: func(req *resource.Request) (models.Notification, error) {
			return h.getNotification(req, targets)
		},
		Update:     h.updateNotification,
		ReadSchema: "notification",
		Render:     h.notificationRenderer(path),
		WriteSchemas: map[resource.Action]resource.WriteSchema{
			resource.ActionUpdate:        notificationUpdateSchema,
			resource.ActionPartialUpdate: notificationUpdateSchema,
		},
		Filters: map[string]resource.Filter[models.Notification]{
			"state": resource.Exact(func(n models.Notification) string { return n.State }),
		},
	},
		get(path+"{$}", resource.ActionList),
		get(detail, resource.ActionRetrieve),
		put(detail),
		patch(detail),
	)
}

// getNotification loads the notification and reports it missing unless it is
// attached to one of the route's targets.
func (h *Handler) getNotification(req *resource.Request, targets notificationTargets) (models.Notification, error) {
	id, err := parseID(req.Param("notification_pk"))
	if err != nil {
		return models.Notification{}, err
	}
	notification, err := h.Store.GetNotification(req.Context(), id)
	if err != nil {
		return models.Notification{}, notFound(err)
	}
	attached, err := targets(req)
	if err != nil {
		return models.Notification{}, err
	}
	for _, target := range attached {
		if target == notification.AttachedTo {
			return notification, nil
		}
	}
	return models.Notification{}, resource.ErrNotFound
}

func (h *Handler) updateNotification(req *resource.Request, current models.Notification) (models.Notification, error) {
	input := req.Payload.(*notificationUpdateInput)
	return h.Store.UpdateNotification(req.Context(), current.ID, storage.NotificationUpdate{State: input.State})
}

// selfNotificationTargets covers the caller, the organizations the caller
// belongs to and the projects the caller administers. Build notifications
// are never included.
func (h *Handler) selfNotificationTargets(req *resource.Request) ([]models.AttachedTo, error) {
	ctx := req.Context()
	targets := []models.AttachedTo{{Kind: models.AttachedToUser, ID: req.Caller.ID}}

	orgs, err := h.Store.ListOrganizationsForUser(ctx, req.Caller.ID)
	if err != nil {
		return nil, err
	}
	for _, org := range orgs {
		targets = append(targets, models.AttachedTo{Kind: models.AttachedToOrganization, ID: org.ID})
	}

	projects, err := h.projectsForUser(ctx, req.Caller.ID, false)
	if err != nil {
		return nil, err
	}
	for _, project := range projects {
		targets = append(targets, models.AttachedTo{Kind: models.AttachedToProject, ID: project.ID})
	}
	return targets, nil
}
