package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router registers every route. /metrics is only served when
// metricsEnabled is set.
func (h *Handlers) Router(metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()

	// Scanner
	api.HandleFunc("/scanner/scan-all", h.ScanAll).Methods(http.MethodPost)
	api.HandleFunc("/scanner/jobs", h.ScanJobs).Methods(http.MethodGet)
	api.HandleFunc("/scanner/periodic-interval", h.SetPeriodicScanInterval).Methods(http.MethodPut)
	api.HandleFunc("/scanner/concurrent-workers", h.SetConcurrentWorkers).Methods(http.MethodPut)
	api.HandleFunc("/scanner/thumbnail-method", h.SetThumbnailMethod).Methods(http.MethodPut)
	api.HandleFunc("/site-info", h.SiteInfo).Methods(http.MethodGet)
	api.HandleFunc("/notifications", h.Notifications).Methods(http.MethodGet)

	// Anonymous share access
	api.HandleFunc("/share/{token}", h.OpenShare).Methods(http.MethodPost)

	user := api.PathPrefix("/users/{userID:[0-9]+}").Subrouter()
	user.HandleFunc("/scan", h.ScanUser).Methods(http.MethodPost)
	user.HandleFunc("/scan", h.CancelScan).Methods(http.MethodDelete)
	user.HandleFunc("/regenerate", h.RegenerateUser).Methods(http.MethodPost)

	// Albums
	user.HandleFunc("/root-paths", h.AddRootPath).Methods(http.MethodPost)
	user.HandleFunc("/albums/{albumID:[0-9]+}", h.GetAlbum).Methods(http.MethodGet)
	user.HandleFunc("/albums/{albumID:[0-9]+}", h.RemoveRootAlbum).Methods(http.MethodDelete)
	user.HandleFunc("/albums/{albumID:[0-9]+}/cover", h.SetAlbumCover).Methods(http.MethodPut)
	user.HandleFunc("/timeline", h.Timeline).Methods(http.MethodGet)

	// Faces
	user.HandleFunc("/face-groups", h.FaceGroups).Methods(http.MethodGet)
	user.HandleFunc("/face-groups/{groupID:[0-9]+}", h.FaceGroup).Methods(http.MethodGet)
	user.HandleFunc("/face-groups/{groupID:[0-9]+}/label", h.SetFaceGroupLabel).Methods(http.MethodPut)
	user.HandleFunc("/face-groups/{groupID:[0-9]+}/combine", h.CombineFaceGroups).Methods(http.MethodPost)
	user.HandleFunc("/face-groups/{groupID:[0-9]+}/faces", h.MoveImageFaces).Methods(http.MethodPost)
	user.HandleFunc("/faces/detach", h.DetachImageFaces).Methods(http.MethodPost)
	user.HandleFunc("/faces/recognize", h.RecognizeUnlabeledFaces).Methods(http.MethodPost)

	// Shares
	user.HandleFunc("/shares", h.ListShares).Methods(http.MethodGet)
	user.HandleFunc("/shares", h.CreateShare).Methods(http.MethodPost)
	user.HandleFunc("/shares/{token}", h.DeleteShare).Methods(http.MethodDelete)
	user.HandleFunc("/shares/{token}/password", h.ProtectShare).Methods(http.MethodPut)

	return r
}
