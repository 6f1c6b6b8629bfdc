package main

import (
	"net/http"

	"finitefield.org/hanko-storefront/internal/platform/httpx"
)

type searchRequest struct {
	Query string `json:"query"`
}

func (sf *storefront) listFavorites(w http.ResponseWriter, r *http.Request) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"products": sh.favorites.List()})
}

func (sf *storefront) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	favorite, err := sh.favorites.Toggle(r.Context(), productID)
	if err != nil {
		writeSyncError(w, r)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"productId": productID, "favorite": favorite})
}

func (sf *storefront) searchHistory(w http.ResponseWriter, r *http.Request) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"queries": sh.favorites.SearchHistory()})
}

func (sf *storefront) recordSearch(w http.ResponseWriter, r *http.Request) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	var req searchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := sh.favorites.RecordSearch(r.Context(), req.Query); err != nil {
		writeSyncError(w, r)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"queries": sh.favorites.SearchHistory()})
}

func (sf *storefront) clearSearchHistory(w http.ResponseWriter, r *http.Request) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	if err := sh.favorites.ClearSearchHistory(r.Context()); err != nil {
		writeSyncError(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSyncError(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("sync_unavailable", "update could not be shared", http.StatusServiceUnavailable))
}
