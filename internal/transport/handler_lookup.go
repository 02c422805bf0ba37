package transport

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/flagconsole/internal/lookup"
	"github.com/pitabwire/flagconsole/model"
)

func handleLookup(provider *lookup.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		name := chi.URLParam(r, "resource")
		if !CapabilitiesFrom(r.Context()).Has(name + ":list") {
			WriteForbidden(w, fmt.Sprintf("listing %s is not permitted", name))
			return
		}

		resp, err := provider.Lookup(r.Context(), name, r.URL.Query().Get("q"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
