package transport

import (
	"net/http"

	"github.com/pitabwire/flagconsole/internal/i18n"
	"github.com/pitabwire/flagconsole/internal/page"
	"github.com/pitabwire/flagconsole/model"
)

type navigationResponse struct {
	Locale string                `json:"locale"`
	Items  []page.NavigationItem `json:"items"`
}

func handleNavigation(pages *page.Registry, catalog *i18n.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())

		var f i18n.Formatter = i18n.Static{}
		if catalog != nil {
			f = catalog.Formatter(rctx.Locale)
		}
		WriteJSON(w, http.StatusOK, navigationResponse{
			Locale: f.Locale(),
			Items:  pages.Navigation(caps, f),
		})
	}
}
