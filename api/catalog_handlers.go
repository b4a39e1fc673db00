package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/catalog"
)

type registerTypeRequest struct {
	catalog.Definition
	Metadata map[string]string `json:"metadata,omitempty"`
}

func registerEventType(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerTypeRequest
		if err := decodeBody(r, &req); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Name == "" {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
			return
		}

		et, err := d.RegisterEventType(r.Context(), req.Definition, req.Metadata)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, et)
	}
}

func listEventTypes(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts := catalog.ListOpts{
			Limit:             queryInt(r, "limit"),
			Offset:            queryInt(r, "offset"),
			Group:             r.URL.Query().Get("group"),
			IncludeDeprecated: r.URL.Query().Get("include_deprecated") == "true",
		}

		types, err := d.Catalog().ListTypes(r.Context(), opts)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"event_types": types})
	}
}

func getEventType(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		et, err := d.Catalog().GetType(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, et)
	}
}

func deleteEventType(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Catalog().DeleteType(r.Context(), chi.URLParam(r, "name")); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
