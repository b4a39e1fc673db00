package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/dlq"
	"github.com/veloxpay/dispatch/id"
)

func dlqListOpts(r *http.Request) (dlq.ListOpts, error) {
	opts := dlq.ListOpts{
		EventType: r.URL.Query().Get("event_type"),
		Limit:     queryInt(r, "limit"),
		Offset:    queryInt(r, "offset"),
	}
	if raw := r.URL.Query().Get("subscription_id"); raw != "" {
		subID, err := id.ParseSubscriptionID(raw)
		if err != nil {
			return opts, err
		}
		opts.SubscriptionID = subID
	}
	return opts, nil
}

func listDLQ(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := dlqListOpts(r)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription_id"})
			return
		}

		entries, err := d.DLQ().List(r.Context(), opts)
		if err != nil {
			respondError(w, err)
			return
		}

		count, err := d.DLQ().Count(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"entries": entries,
			"total":   count,
		})
	}
}

func replayDLQEntry(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID, err := id.ParseDLQID(chi.URLParam(r, "id"))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid dlq entry id"})
			return
		}

		del, err := d.DLQ().Replay(r.Context(), entryID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, del)
	}
}

func replayDLQBulk(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := dlqListOpts(r)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription_id"})
			return
		}

		replayed, err := d.DLQ().ReplayBulk(r.Context(), opts)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]any{
			"replayed":     replayed,
			"replay_count": len(replayed),
		})
	}
}

func purgeDLQEntry(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entryID, err := id.ParseDLQID(chi.URLParam(r, "id"))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid dlq entry id"})
			return
		}

		if err := d.DLQ().Purge(r.Context(), entryID); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
