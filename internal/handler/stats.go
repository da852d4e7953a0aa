package handler

import (
	"net/http"

	"github.com/efreitasn/stockserver/internal/admission"
	"github.com/efreitasn/stockserver/internal/stats"
)

// StatsHandler reports admission and transaction counters.
type StatsHandler struct {
	ctrl     *admission.Controller
	recorder *stats.MemoryRecorder
}

// NewStatsHandler creates a new StatsHandler. recorder may be nil.
func NewStatsHandler(ctrl *admission.Controller, recorder *stats.MemoryRecorder) *StatsHandler {
	return &StatsHandler{ctrl: ctrl, recorder: recorder}
}

type admissionResponse struct {
	Active int `json:"active"`
	Max    int `json:"max"`
	Peak   int `json:"peak"`
}

type statsResponse struct {
	Admission    admissionResponse `json:"admission"`
	Transactions int64             `json:"transactions"`
	Counters     []stats.Counter   `json:"counters"`
}

// Get handles GET /stats.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Admission: admissionResponse{
			Active: h.ctrl.Active(),
			Max:    h.ctrl.Max(),
			Peak:   h.ctrl.Peak(),
		},
		Counters: []stats.Counter{},
	}
	if h.recorder != nil {
		resp.Transactions = h.recorder.Total()
		resp.Counters = h.recorder.Snapshot()
	}
	WriteJSON(w, http.StatusOK, resp)
}
