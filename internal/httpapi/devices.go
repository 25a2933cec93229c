package httpapi

import (
	"net/http"
	"time"

	"mijia-gateway/internal/gateway"
	"mijia-gateway/internal/utils"
)

type devicesHandler struct {
	tracker    *gateway.Tracker
	staleAfter time.Duration
}

func (h *devicesHandler) handleList(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"devices": h.tracker.Snapshot(h.staleAfter),
	})
}

func (h *devicesHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	addr, err := utils.NormalizeAddress(r.PathValue("address"))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, s := range h.tracker.Snapshot(h.staleAfter) {
		if s.Address == addr {
			utils.WriteJSON(w, http.StatusOK, s)
			return
		}
	}
	utils.WriteError(w, http.StatusNotFound, "device "+addr+" is not configured")
}

func registerDevices(mux *http.ServeMux, tracker *gateway.Tracker, staleAfter time.Duration) {
	h := &devicesHandler{tracker: tracker, staleAfter: staleAfter}
	mux.HandleFunc("GET /devices", h.handleList)
	mux.HandleFunc("GET /devices/{address}", h.handleGet)
}
