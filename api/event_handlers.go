package api

import (
	"net/http"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/event"
)

type triggerRequest struct {
	Type           string `json:"type"`
	TenantID       string `json:"tenant_id"`
	Data           any    `json:"data"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func triggerEvent(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerRequest
		if err := decodeBody(r, &req); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Type == "" {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "type is required"})
			return
		}
		if req.TenantID == "" {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
			return
		}

		evt := &event.Event{
			Type:           req.Type,
			TenantID:       req.TenantID,
			Data:           req.Data,
			IdempotencyKey: req.IdempotencyKey,
		}

		enqueued, err := d.Trigger(r.Context(), evt)
		if err != nil {
			respondError(w, err)
			return
		}

		respondJSON(w, http.StatusAccepted, map[string]any{
			"event_id":            evt.ID,
			"deliveries_enqueued": enqueued,
		})
	}
}
