package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"photo-library/internal/database"
)

type createShareRequest struct {
	database.ShareTarget
	Expire   *time.Time `json:"expire,omitempty"`
	Password string     `json:"password,omitempty"`
}

// CreateShare creates a share token for an album or media of the user.
func (h *Handlers) CreateShare(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createShareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, err := h.shares.Create(r.Context(), userID, req.ShareTarget, req.Expire, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, token)
}

// ListShares lists the share tokens of the user.
func (h *Handlers) ListShares(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tokens, err := h.shares.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if tokens == nil {
		tokens = []database.ShareToken{}
	}
	respond(w, http.StatusOK, tokens)
}

// DeleteShare deletes a share token of the user.
func (h *Handlers) DeleteShare(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.shares.Delete(r.Context(), userID, mux.Vars(r)["token"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "ok")
}

type passwordRequest struct {
	Password string `json:"password"`
}

// ProtectShare sets the password of a share token. An empty password
// removes the protection.
func (h *Handlers) ProtectShare(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.shares.ProtectShareToken(r.Context(), userID, mux.Vars(r)["token"], req.Password); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "ok")
}

// OpenShare resolves a share token for an anonymous viewer. The password
// travels in the body so it stays out of access logs.
func (h *Handlers) OpenShare(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	shared, err := h.shares.Validate(r.Context(), mux.Vars(r)["token"], req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, shared)
}
