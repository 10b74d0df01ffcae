package dashboard

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthCheck returns a 200 OK with a minimal JSON status, used by a
// process supervisor to distinguish "running" from "crashed" without
// needing to parse logs.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
