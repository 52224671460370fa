package api

import (
	"docsplatform/internal/access"
	"docsplatform/internal/models"
	"docsplatform/internal/resource"
	"docsplatform/internal/storage"
)

// mountEnvironmentVariables routes no update actions; variables are immutable
// once created.
func (h *Handler) mountEnvironmentVariables() error {
	return mount(h, resource.Config[models.EnvironmentVariable]{
		Name:    "environmentvariables",
		Object:  access.ObjectEnvironmentVariables,
		Parents: h.projectScope,
		List: func(req *resource.Request) ([]models.EnvironmentVariable, error) {
			return h.Store.ListEnvironmentVariables(req.Context(), req.Scope.Project.ID)
		},
		Get:        h.getEnvironmentVariable,
		Create:     h.createEnvironmentVariable,
		Destroy:    h.destroyEnvironmentVariable,
		ReadSchema: "environmentvariable",
		Render:     h.renderEnvironmentVariable,
		WriteSchemas: map[resource.Action]resource.WriteSchema{
			resource.ActionCreate:  envVarSchema,
			resource.ActionDestroy: envVarDestroySchema,
		},
	},
		get("/projects/{project_slug}/environmentvariables/{$}", resource.ActionList),
		post("/projects/{project_slug}/environmentvariables/{$}", resource.ActionCreate),
		get("/projects/{project_slug}/environmentvariables/{variable_pk}/{$}", resource.ActionRetrieve),
		del("/projects/{project_slug}/environmentvariables/{variable_pk}/{$}"),
	)
}

func (h *Handler) getEnvironmentVariable(req *resource.Request) (models.EnvironmentVariable, error) {
	id, err := parseID(req.Param("variable_pk"))
	if err != nil {
		return models.EnvironmentVariable{}, err
	}
	variable, err := h.Store.GetEnvironmentVariable(req.Context(), id)
	if err != nil {
		return models.EnvironmentVariable{}, notFound(err)
	}
	if variable.ProjectID != req.Scope.Project.ID {
		return models.EnvironmentVariable{}, resource.ErrNotFound
	}
	return variable, nil
}

func (h *Handler) createEnvironmentVariable(req *resource.Request) (models.EnvironmentVariable, error) {
	input := req.Payload.(*environmentVariableInput)
	if err := input.check(); err != nil {
		return models.EnvironmentVariable{}, err
	}
	variable, err := h.Store.CreateEnvironmentVariable(req.Context(), storage.CreateEnvironmentVariableParams{
		ProjectID: req.Scope.Project.ID,
		Name:      input.Name,
		Value:     input.Value,
		Public:    input.Public,
	})
	if err != nil {
		return models.EnvironmentVariable{}, err
	}
	h.auditLogger(req).Info("environment variable created", "project", req.Scope.Project.Slug, "name", variable.Name)
	return variable, nil
}

func (h *Handler) destroyEnvironmentVariable(req *resource.Request, variable models.EnvironmentVariable) error {
	if err := h.Store.DeleteEnvironmentVariable(req.Context(), variable.ID); err != nil {
		return err
	}
	h.auditLogger(req).Info("environment variable deleted", "project", req.Scope.Project.Slug, "name", variable.Name)
	return nil
}
