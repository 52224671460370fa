package api

import (
	"context"
	"net/http"
	"sort"

	"docsplatform/internal/resource"
)

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) componentHealth(ctx context.Context) ([]componentStatus, string, int) {
	overallStatus := "ok"
	statusCode := http.StatusOK
	recordComponent := func(component string, err error) componentStatus {
		status := "ok"
		message := ""
		if err != nil {
			status = "degraded"
			message = err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		return componentStatus{Component: component, Status: status, Error: message}
	}

	components := make([]componentStatus, 0, 2+len(h.healthChecks))
	components = append(components, recordComponent("datastore", h.Store.Ping(ctx)))
	components = append(components, recordComponent("sessions", h.Sessions.Ping(ctx)))

	names := make([]string, 0, len(h.healthChecks))
	for name := range h.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		components = append(components, recordComponent(name, h.healthChecks[name](ctx)))
	}
	return components, overallStatus, statusCode
}

// Health reports the datastore, the session store and every registered
// component check. Any failure turns the response into a 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	components, status, code := h.componentHealth(r.Context())
	resource.WriteJSON(w, code, map[string]any{
		"status":   status,
		"services": components,
	})
}
