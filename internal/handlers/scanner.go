package handlers

import (
	"net/http"

	"photo-library/internal/media"
)

// ScanAll queues a scan of every user with root paths.
func (h *Handlers) ScanAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.scans.ScanAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusAccepted, res)
}

// ScanUser queues a scan of one user.
func (h *Handlers) ScanUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.scans.ScanUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusAccepted, res)
}

// RegenerateUser queues a scan that rebuilds every derived asset of a user.
func (h *Handlers) RegenerateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.scans.RegenerateUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusAccepted, res)
}

// CancelScan cancels the queued or running scan of a user.
func (h *Handlers) CancelScan(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := h.scans.CancelUser(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, status)
}

// ScanJobs lists active and recent scan jobs.
func (h *Handlers) ScanJobs(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.scans.Jobs())
}

// SiteInfoResponse describes the live scanner settings.
type SiteInfoResponse struct {
	PeriodicScanInterval int      `json:"periodicScanInterval"`
	ConcurrentWorkers    int      `json:"concurrentWorkers"`
	ThumbnailMethod      string   `json:"thumbnailMethod"`
	ThumbnailMethods     []string `json:"thumbnailMethods"`
}

// SiteInfo returns the scanner settings.
func (h *Handlers) SiteInfo(w http.ResponseWriter, r *http.Request) {
	info := h.scans.SiteInfo()
	respond(w, http.StatusOK, SiteInfoResponse{
		PeriodicScanInterval: info.PeriodicScanInterval,
		ConcurrentWorkers:    info.ConcurrentWorkers,
		ThumbnailMethod:      info.ThumbnailMethod,
		ThumbnailMethods:     media.FilterNames(),
	})
}

type intSetting struct {
	Value int `json:"value"`
}

type stringSetting struct {
	Value string `json:"value"`
}

// SetPeriodicScanInterval sets the periodic scan interval in seconds.
func (h *Handlers) SetPeriodicScanInterval(w http.ResponseWriter, r *http.Request) {
	var req intSetting
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.scans.SetPeriodicScanInterval(r.Context(), req.Value); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, req)
}

// SetConcurrentWorkers sets the number of concurrent scan jobs.
func (h *Handlers) SetConcurrentWorkers(w http.ResponseWriter, r *http.Request) {
	var req intSetting
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.scans.SetConcurrentWorkers(r.Context(), req.Value); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, req)
}

// SetThumbnailMethod sets the thumbnail downsample filter.
func (h *Handlers) SetThumbnailMethod(w http.ResponseWriter, r *http.Request) {
	var req stringSetting
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.scans.SetThumbnailDownsampleMethod(r.Context(), req.Value); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, req)
}
