package health

import (
	"encoding/json"
	"net/http"
)

// NewHandler serves the monitor's aggregate as JSON. Healthy and
// degraded report 200 so a shedding pipeline is not restarted by
// liveness probes; unhealthy reports 503.
func NewHandler(monitor *Monitor, systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		status := monitor.AggregateHealth(systemName)

		w.Header().Set("Content-Type", "application/json")
		if status.IsUnhealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
