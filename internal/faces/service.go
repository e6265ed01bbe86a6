package faces

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"photo-library/internal/apperr"
	"photo-library/internal/database"
	"photo-library/internal/logging"
	"photo-library/internal/metrics"
)

// Service assigns detected faces to groups and applies user edits to them.
// Writes to one owner's face groups are serialized.
type Service struct {
	db          *database.Database
	maxDistance float64
	owners      *ownerLocks
	busy        *inflight
}

// GroupWithFaces is a face group together with its faces on live media.
type GroupWithFaces struct {
	database.FaceGroup
	Faces []database.ImageFace `json:"faces"`
}

// NewService creates a face service. A non-positive maxDistance selects
// DefaultMaxDistance.
func NewService(db *database.Database, maxDistance float64) *Service {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	return &Service{
		db:          db,
		maxDistance: maxDistance,
		owners:      newOwnerLocks(),
		busy:        newInflight(),
	}
}

// LockOwner blocks until the caller holds the face lock of ownerID. The
// returned function releases it.
func (s *Service) LockOwner(ownerID int64) func() {
	return s.owners.lock(ownerID)
}

// AssignFaces replaces the faces of a media with dets. A detection that
// covers the same spot as one of the media's previous faces inherits that
// face's group, so labels and manual moves survive re-detection. Other
// detections join the nearest group of the owner or a new singleton group.
// Unlabeled groups that only held the media's previous faces are removed.
// The caller must hold LockOwner(ownerID) for the lifetime of tx.
func (s *Service) AssignFaces(ctx context.Context, tx *database.Tx, ownerID, mediaID int64, dets []Detection) ([]database.ImageFace, error) {
	previous, err := tx.MediaFaces(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to load faces of media %d: %w", mediaID, err)
	}
	groups, err := tx.FaceGroups(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	existing, err := tx.OwnerFaces(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	cl := newClusters(groups, existing)

	if err := tx.DeleteMediaFaces(ctx, mediaID); err != nil {
		return nil, fmt.Errorf("failed to clear faces of media %d: %w", mediaID, err)
	}

	claimed := make([]bool, len(previous))
	var assigned []database.ImageFace
	for _, det := range dets {
		if err := det.Validate(); err != nil {
			logging.Warn("Skipping face on media %d: %v", mediaID, err)
			continue
		}

		var groupID int64
		if i, ok := samePlace(previous, claimed, det); ok {
			claimed[i] = true
			groupID = previous[i].FaceGroupID
			metrics.FaceAssignmentsTotal.WithLabelValues("kept").Inc()
		} else if id, ok := cl.nearest(det.Embedding, s.maxDistance, false); ok {
			groupID = id
			metrics.FaceAssignmentsTotal.WithLabelValues("matched").Inc()
		} else {
			groupID, err = tx.CreateFaceGroup(ctx, ownerID, nil)
			if err != nil {
				return nil, err
			}
			metrics.FaceAssignmentsTotal.WithLabelValues("new_group").Inc()
		}

		face := database.ImageFace{
			MediaID:     mediaID,
			FaceGroupID: groupID,
			OwnerID:     ownerID,
			Embedding:   database.Embedding(det.Embedding),
			Rect:        det.Rect,
		}
		face.ID, err = tx.InsertFace(ctx, &face)
		if err != nil {
			return nil, err
		}
		cl.ensure(groupID, false).add(det.Embedding)
		assigned = append(assigned, face)
	}
	metrics.FacesDetectedTotal.Add(float64(len(assigned)))

	if _, err := tx.DeleteFaceGroupsIfEmpty(ctx, unlabeledGroups(previous, groups)); err != nil {
		return nil, err
	}
	return assigned, nil
}

// FaceGroups lists the face groups of a user.
func (s *Service) FaceGroups(ctx context.Context, userID int64) ([]database.FaceGroup, error) {
	return s.db.FaceGroups(ctx, userID)
}

// FaceGroup returns one group of a user with its faces.
func (s *Service) FaceGroup(ctx context.Context, userID, groupID int64) (*GroupWithFaces, error) {
	group, err := s.ownedGroup(ctx, s.db, userID, groupID)
	if err != nil {
		return nil, err
	}
	faces, err := s.db.GroupFaces(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return &GroupWithFaces{FaceGroup: *group, Faces: faces}, nil
}

// CombineFaceGroups moves every face of src into dst and removes src.
func (s *Service) CombineFaceGroups(ctx context.Context, userID, dst, src int64) (err error) {
	defer record("combine", &err)

	if dst == src {
		return fmt.Errorf("cannot combine face group %d with itself: %w", dst, apperr.ErrInvalidArgument)
	}
	release, err := s.busy.claim(dst, src)
	if err != nil {
		return err
	}
	defer release()
	unlock := s.owners.lock(userID)
	defer unlock()

	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		for _, id := range []int64{dst, src} {
			if _, err := s.ownedGroup(ctx, tx, userID, id); err != nil {
				return err
			}
		}
		if err := tx.MoveGroupFaces(ctx, src, dst); err != nil {
			return fmt.Errorf("failed to move faces of group %d: %w", src, err)
		}
		if err := tx.DeleteFaceGroup(ctx, src); err != nil {
			return fmt.Errorf("failed to delete face group %d: %w", src, err)
		}
		logging.Info("Combined face group %d into %d for user %d", src, dst, userID)
		return nil
	})
}

// MoveImageFaces moves faces into dst. Source groups left empty are removed.
func (s *Service) MoveImageFaces(ctx context.Context, userID int64, faceIDs []int64, dst int64) (err error) {
	defer record("move", &err)

	ids, err := normalizeIDs(faceIDs)
	if err != nil {
		return err
	}
	sources, err := s.sourceGroups(ctx, ids)
	if err != nil {
		return err
	}
	release, err := s.busy.claim(appendUnique(sources, dst)...)
	if err != nil {
		return err
	}
	defer release()
	unlock := s.owners.lock(userID)
	defer unlock()

	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := s.ownedGroup(ctx, tx, userID, dst); err != nil {
			return err
		}
		faces, err := s.ownedFaces(ctx, tx, userID, ids)
		if err != nil {
			return err
		}
		if err := tx.MoveFaces(ctx, ids, dst); err != nil {
			return fmt.Errorf("failed to move faces: %w", err)
		}
		_, err = tx.DeleteFaceGroupsIfEmpty(ctx, faceGroupIDs(faces))
		return err
	})
}

// DetachImageFaces moves faces into a new unlabeled group and returns it.
func (s *Service) DetachImageFaces(ctx context.Context, userID int64, faceIDs []int64) (group *database.FaceGroup, err error) {
	defer record("detach", &err)

	ids, err := normalizeIDs(faceIDs)
	if err != nil {
		return nil, err
	}
	sources, err := s.sourceGroups(ctx, ids)
	if err != nil {
		return nil, err
	}
	release, err := s.busy.claim(sources...)
	if err != nil {
		return nil, err
	}
	defer release()
	unlock := s.owners.lock(userID)
	defer unlock()

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		faces, err := s.ownedFaces(ctx, tx, userID, ids)
		if err != nil {
			return err
		}
		groupID, err := tx.CreateFaceGroup(ctx, userID, nil)
		if err != nil {
			return err
		}
		if err := tx.MoveFaces(ctx, ids, groupID); err != nil {
			return fmt.Errorf("failed to detach faces: %w", err)
		}
		if _, err := tx.DeleteFaceGroupsIfEmpty(ctx, faceGroupIDs(faces)); err != nil {
			return err
		}
		group, err = tx.GetFaceGroup(ctx, groupID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// SetFaceGroupLabel sets the label of a group. A nil or blank label clears it.
func (s *Service) SetFaceGroupLabel(ctx context.Context, userID, groupID int64, label *string) (err error) {
	defer record("label", &err)

	if label != nil {
		trimmed := strings.TrimSpace(*label)
		if trimmed == "" {
			label = nil
		} else {
			label = &trimmed
		}
	}
	release, err := s.busy.claim(groupID)
	if err != nil {
		return err
	}
	defer release()
	unlock := s.owners.lock(userID)
	defer unlock()

	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := s.ownedGroup(ctx, tx, userID, groupID); err != nil {
			return err
		}
		return tx.SetFaceGroupLabel(ctx, groupID, label)
	})
}

// RecognizeUnlabeledFaces compares the faces of unlabeled groups against the
// centroids of labeled groups and moves those within the threshold. It
// returns the moved faces; emptied unlabeled groups are removed.
func (s *Service) RecognizeUnlabeledFaces(ctx context.Context, userID int64) (moved []database.ImageFace, err error) {
	defer record("recognize", &err)

	unlock := s.owners.lock(userID)
	defer unlock()

	groups, err := s.db.FaceGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.ID)
	}
	release, err := s.busy.claim(ids...)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		faces, err := tx.OwnerFaces(ctx, userID)
		if err != nil {
			return err
		}
		cl := newClusters(groups, faces)

		touched := make(map[int64]bool)
		byGroup := make(map[int64][]int64)
		for _, f := range faces {
			if c, ok := cl.byID[f.FaceGroupID]; !ok || c.labeled {
				continue
			}
			target, ok := cl.nearest(f.Embedding, s.maxDistance, true)
			if !ok {
				continue
			}
			touched[f.FaceGroupID] = true
			byGroup[target] = append(byGroup[target], f.ID)
			f.FaceGroupID = target
			moved = append(moved, f)
		}
		for target, faceIDs := range byGroup {
			if err := tx.MoveFaces(ctx, faceIDs, target); err != nil {
				return err
			}
		}
		emptied := make([]int64, 0, len(touched))
		for id := range touched {
			emptied = append(emptied, id)
		}
		_, err = tx.DeleteFaceGroupsIfEmpty(ctx, emptied)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(moved) > 0 {
		logging.Info("Recognized %d faces for user %d", len(moved), userID)
	}
	return moved, nil
}

type groupReader interface {
	GetFaceGroup(ctx context.Context, id int64) (*database.FaceGroup, error)
}

func (s *Service) ownedGroup(ctx context.Context, r groupReader, userID, groupID int64) (*database.FaceGroup, error) {
	group, err := r.GetFaceGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.OwnerID != userID {
		return nil, fmt.Errorf("face group %d belongs to another user: %w", groupID, apperr.ErrForbidden)
	}
	return group, nil
}

func (s *Service) ownedFaces(ctx context.Context, tx *database.Tx, userID int64, ids []int64) ([]database.ImageFace, error) {
	faces, err := tx.GetFaces(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(faces) != len(ids) {
		return nil, fmt.Errorf("%d of %d faces: %w", len(ids)-len(faces), len(ids), apperr.ErrNotFound)
	}
	for _, f := range faces {
		if f.OwnerID != userID {
			return nil, fmt.Errorf("face %d belongs to another user: %w", f.ID, apperr.ErrForbidden)
		}
	}
	return faces, nil
}

// sourceGroups returns the groups currently holding the faces.
func (s *Service) sourceGroups(ctx context.Context, ids []int64) ([]int64, error) {
	faces, err := s.db.GetFaces(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(faces) != len(ids) {
		return nil, fmt.Errorf("%d of %d faces: %w", len(ids)-len(faces), len(ids), apperr.ErrNotFound)
	}
	return faceGroupIDs(faces), nil
}

func normalizeIDs(ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no face ids given: %w", apperr.ErrInvalidArgument)
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		out = appendUnique(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// unlabeledGroups returns the groups of faces that carry no label.
func unlabeledGroups(faces []database.ImageFace, groups []database.FaceGroup) []int64 {
	labeled := make(map[int64]bool, len(groups))
	for _, g := range groups {
		labeled[g.ID] = g.Labeled()
	}
	var ids []int64
	for _, id := range faceGroupIDs(faces) {
		if !labeled[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

func faceGroupIDs(faces []database.ImageFace) []int64 {
	var ids []int64
	for _, f := range faces {
		ids = appendUnique(ids, f.FaceGroupID)
	}
	return ids
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}

func record(operation string, err *error) {
	status := "success"
	if *err != nil {
		status = "error"
	}
	metrics.FaceGroupOperationsTotal.WithLabelValues(operation, status).Inc()
}
