package handlers

import (
	"net/http"

	"photo-library/internal/database"
)

// FaceGroups lists the face groups of a user.
func (h *Handlers) FaceGroups(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	groups, err := h.faces.FaceGroups(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []database.FaceGroup{}
	}
	respond(w, http.StatusOK, groups)
}

// FaceGroup returns one face group with its faces.
func (h *Handlers) FaceGroup(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := userAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	group, err := h.faces.FaceGroup(r.Context(), userID, groupID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, group)
}

type labelRequest struct {
	Label *string `json:"label"`
}

// SetFaceGroupLabel sets or clears the label of a face group.
func (h *Handlers) SetFaceGroupLabel(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := userAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req labelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.faces.SetFaceGroupLabel(r.Context(), userID, groupID, req.Label); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "ok")
}

type combineRequest struct {
	SourceGroupID int64 `json:"sourceGroupId"`
}

// CombineFaceGroups merges the source group into the group in the path.
func (h *Handlers) CombineFaceGroups(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := userAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req combineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.faces.CombineFaceGroups(r.Context(), userID, groupID, req.SourceGroupID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "ok")
}

type facesRequest struct {
	FaceIDs []int64 `json:"faceIds"`
}

// MoveImageFaces moves faces into the group in the path.
func (h *Handlers) MoveImageFaces(w http.ResponseWriter, r *http.Request) {
	userID, groupID, err := userAndGroup(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req facesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.faces.MoveImageFaces(r.Context(), userID, req.FaceIDs, groupID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "ok")
}

// DetachImageFaces moves faces into a new group.
func (h *Handlers) DetachImageFaces(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req facesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	group, err := h.faces.DetachImageFaces(r.Context(), userID, req.FaceIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, group)
}

// RecognizeUnlabeledFaces assigns unlabeled faces to matching labeled groups.
func (h *Handlers) RecognizeUnlabeledFaces(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	moved, err := h.faces.RecognizeUnlabeledFaces(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if moved == nil {
		moved = []database.ImageFace{}
	}
	respond(w, http.StatusOK, moved)
}

func userAndGroup(r *http.Request) (int64, int64, error) {
	userID, err := pathID(r, "userID")
	if err != nil {
		return 0, 0, err
	}
	groupID, err := pathID(r, "groupID")
	return userID, groupID, err
}
