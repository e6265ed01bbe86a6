package handlers

import (
	"context"
	"time"

	"photo-library/internal/database"
	"photo-library/internal/faces"
	"photo-library/internal/logging"
	"photo-library/internal/notify"
	"photo-library/internal/orchestrator"
	"photo-library/internal/share"
	"photo-library/internal/storage"
)

// Handlers serves the HTTP boundary.
type Handlers struct {
	db        *database.Database
	scans     *orchestrator.Orchestrator
	faces     *faces.Service
	shares    *share.Service
	hub       *notify.Hub
	store     storage.Store
	startTime time.Time
	// heartbeat paces SSE keep-alive comments.
	heartbeat time.Duration
}

// Deps are the services the handlers call into.
type Deps struct {
	DB           *database.Database
	Orchestrator *orchestrator.Orchestrator
	Faces        *faces.Service
	Shares       *share.Service
	Hub          *notify.Hub
	Store        storage.Store
}

// New creates the handlers.
func New(deps Deps) *Handlers {
	return &Handlers{
		db:        deps.DB,
		scans:     deps.Orchestrator,
		faces:     deps.Faces,
		shares:    deps.Shares,
		hub:       deps.Hub,
		store:     deps.Store,
		startTime: time.Now(),
		heartbeat: 30 * time.Second,
	}
}

// deleteAssets removes derived assets after their records are gone. A
// failure leaves orphaned objects, which is logged and not surfaced.
func (h *Handlers) deleteAssets(ctx context.Context, keys []string) {
	if len(keys) == 0 || h.store == nil {
		return
	}
	if err := storage.DeleteAll(context.WithoutCancel(ctx), h.store, keys); err != nil {
		logging.Warn("Failed to delete %d derived assets: %v", len(keys), err)
	}
}
