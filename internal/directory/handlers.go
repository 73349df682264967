package directory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// API exposes the key directory over HTTP: upload (upsert) and lookup.
type API struct {
	Store Store
	Log   *slog.Logger
}

type uploadReq struct {
	Username     string `json:"username"`
	PublicKeyB64 string `json:"public_key_b64"`
}

type errorResp struct {
	Detail string `json:"detail"`
}

// Upload handles POST /api/keys/upload. Missing fields are a client error;
// a repeated upload for the same username replaces the stored key.
func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := a.Store.Upsert(r.Context(), req.Username, req.PublicKeyB64)
	if err != nil {
		if errors.Is(err, ErrMissingFields) {
			writeError(w, http.StatusBadRequest, "username and public_key_b64 required")
			return
		}
		a.Log.Error("key upsert failed", "username", req.Username, "err", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	writeJSON(w, rec)
}

// Get handles GET /api/keys/{username}.
func (a *API) Get(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	rec, err := a.Store.Get(r.Context(), username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		a.Log.Error("key lookup failed", "username", username, "err", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	writeJSON(w, rec)
}

// writeJSON sends a response with proper headers.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResp{Detail: detail})
}
