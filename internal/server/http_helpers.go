package server

import (
	"net/http"

	"docsplatform/internal/resource"
)

// writeMiddlewareError renders middleware failures in the API error shape.
func writeMiddlewareError(w http.ResponseWriter, status int, message string) {
	resource.WriteJSON(w, status, map[string]string{"error": message})
}
