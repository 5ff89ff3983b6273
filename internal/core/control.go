package core

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/drand/ssc/common/log"
	"github.com/drand/ssc/internal/metrics"
	"github.com/drand/ssc/internal/worker"
)

// ParticipationPath is where the participation control endpoint is mounted.
const ParticipationPath = "/participation"

type participationStatus struct {
	Enabled bool `json:"enabled"`
}

// ParticipationHandler exposes the participation flag of the node. GET returns
// it; POST with ?enabled=true|false sets it.
func ParticipationHandler(node *worker.NodeContext, l log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
		case http.MethodPost:
			enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
			if err != nil {
				http.Error(w, "enabled must be true or false", http.StatusBadRequest)
				return
			}
			node.SetParticipation(enabled)
			metrics.SetParticipation(enabled)
			l.Infow("participation changed", "enabled", enabled)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(participationStatus{Enabled: node.Participating()}); err != nil {
			l.Warnw("writing participation status", "err", err)
		}
	})
}
