package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/delivery"
	"github.com/veloxpay/dispatch/history"
	"github.com/veloxpay/dispatch/id"
	"github.com/veloxpay/dispatch/subscription"
)

// subscriptionDetail flattens the subscription fields and appends the
// recent delivery trail.
type subscriptionDetail struct {
	*subscription.Subscription
	RecentDeliveries []*history.Attempt `json:"recent_deliveries"`
}

func createSubscription(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in subscription.Input
		if err := decodeBody(r, &in); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		sub, secret, err := d.Subscriptions().Register(r.Context(), in)
		if err != nil {
			respondError(w, err)
			return
		}

		// The plaintext secret is returned exactly once.
		respondJSON(w, http.StatusCreated, map[string]any{
			"subscription": sub,
			"secret":       secret,
		})
	}
}

func listSubscriptions(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
			return
		}

		opts := subscription.ListOpts{
			Limit:  queryInt(r, "limit"),
			Offset: queryInt(r, "offset"),
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := subscription.Status(raw)
			if !status.Valid() {
				respondJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
				return
			}
			opts.Status = &status
		}

		subs, err := d.Subscriptions().List(r.Context(), tenantID, opts)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"subscriptions": subs})
	}
}

func getSubscription(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subID, err := id.ParseSubscriptionID(chi.URLParam(r, "id"))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
			return
		}

		sub, attempts, err := d.GetWithDeliveries(r.Context(), subID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, subscriptionDetail{
			Subscription:     sub,
			RecentDeliveries: attempts,
		})
	}
}

func updateSubscription(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subID, err := id.ParseSubscriptionID(chi.URLParam(r, "id"))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
			return
		}

		var in subscription.Input
		if err := decodeBody(r, &in); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		sub, err := d.Subscriptions().Update(r.Context(), subID, in)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, sub)
	}
}

func deleteSubscription(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subID, err := id.ParseSubscriptionID(chi.URLParam(r, "id"))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
			return
		}

		if err := d.Subscriptions().Delete(r.Context(), subID); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func rotateSecret(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subID, err := id.ParseSubscriptionID(chi.URLParam(r, "id"))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
			return
		}

		secret, err := d.Subscriptions().RotateSecret(r.Context(), subID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"secret": secret})
	}
}

func testDelivery(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subID, err := id.ParseSubscriptionID(chi.URLParam(r, "id"))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
			return
		}

		del, err := d.TestDelivery(r.Context(), subID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusAccepted, del)
	}
}

func recentAttempts(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subID, err := id.ParseSubscriptionID(chi.URLParam(r, "id"))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
			return
		}

		attempts, err := d.History().Recent(r.Context(), subID, queryInt(r, "limit"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
	}
}

func listDeliveries(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subID, err := id.ParseSubscriptionID(chi.URLParam(r, "id"))
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subscription id"})
			return
		}

		opts := delivery.ListOpts{
			Limit:  queryInt(r, "limit"),
			Offset: queryInt(r, "offset"),
		}
		if raw := r.URL.Query().Get("state"); raw != "" {
			state := delivery.State(raw)
			opts.State = &state
		}

		deliveries, err := d.Store().ListBySubscription(r.Context(), subID, opts)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"deliveries": deliveries})
	}
}
