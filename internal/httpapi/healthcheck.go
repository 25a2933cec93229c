package httpapi

import (
	"net/http"

	"mijia-gateway/internal/utils"
)

// ConnectionChecker reports whether the broker connection is up.
type ConnectionChecker interface {
	IsConnected() bool
}

type healthchecker struct {
	conn ConnectionChecker
}

func (h *healthchecker) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if h.conn != nil && !h.conn.IsConnected() {
		utils.WriteError(w, http.StatusServiceUnavailable, "mqtt not connected")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func registerHealthcheck(mux *http.ServeMux, conn ConnectionChecker) {
	h := &healthchecker{conn: conn}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
