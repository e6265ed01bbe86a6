package handlers

import (
	"fmt"
	"net/http"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
)

type rootPathRequest struct {
	Path string `json:"path"`
}

// RootPathResponse is a new root path and its album.
type RootPathResponse struct {
	RootPath *database.RootPath `json:"rootPath"`
	Album    *database.Album    `json:"album"`
}

// AddRootPath registers a directory as a root of the user. The directory
// is indexed by the next scan of the user.
func (h *Handlers) AddRootPath(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req rootPathRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Path == "" {
		writeError(w, r, fmt.Errorf("path is required: %w", apperr.ErrInvalidArgument))
		return
	}

	root, album, err := h.db.AddRootPath(r.Context(), userID, req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, RootPathResponse{RootPath: root, Album: album})
}

// RemoveRootAlbum removes a root album with its subtree and derived
// assets.
func (h *Handlers) RemoveRootAlbum(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	albumID, err := pathID(r, "albumID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	keys, err := h.db.RemoveRootAlbum(r.Context(), userID, albumID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.deleteAssets(r.Context(), keys)
	writeJSONStatus(w, "ok")
}

// AlbumResponse is an album with its children.
type AlbumResponse struct {
	Album     *database.Album  `json:"album"`
	SubAlbums []database.Album `json:"subAlbums"`
	Media     []database.Media `json:"media"`
}

// GetAlbum returns an album of the user with its live sub-albums and media.
func (h *Handlers) GetAlbum(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	albumID, err := pathID(r, "albumID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	album, err := h.db.GetAlbum(ctx, albumID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if album.OwnerID != userID {
		writeError(w, r, fmt.Errorf("album %d belongs to another user: %w", albumID, apperr.ErrForbidden))
		return
	}
	if album.Tombstoned() {
		writeError(w, r, fmt.Errorf("album %d was removed from disk: %w", albumID, apperr.ErrGone))
		return
	}

	subAlbums, err := h.db.SubAlbums(ctx, albumID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	media, err := h.db.AlbumMedia(ctx, albumID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if subAlbums == nil {
		subAlbums = []database.Album{}
	}
	if media == nil {
		media = []database.Media{}
	}
	respond(w, http.StatusOK, AlbumResponse{Album: album, SubAlbums: subAlbums, Media: media})
}

type albumCoverRequest struct {
	MediaID *int64 `json:"mediaId"`
}

// SetAlbumCover assigns a media of the album's subtree as its cover, or
// clears the cover when mediaId is null.
func (h *Handlers) SetAlbumCover(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	albumID, err := pathID(r, "albumID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req albumCoverRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if err := h.db.SetAlbumCover(ctx, userID, albumID, req.MediaID); err != nil {
		writeError(w, r, err)
		return
	}
	album, err := h.db.GetAlbum(ctx, albumID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, album)
}

// Timeline returns the live media of the user grouped by day and album.
// limit and offset page over media.
func (h *Handlers) Timeline(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	groups, err := h.db.Timeline(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []database.TimelineGroup{}
	}
	respond(w, http.StatusOK, groups)
}
