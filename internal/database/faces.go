package database

import (
	"context"
	"fmt"
	"time"
)

const faceColumns = `f.id, f.media_id, f.face_group_id, m.owner_id, f.embedding,
	f.rect_min_x, f.rect_min_y, f.rect_max_x, f.rect_max_y`

// FaceGroups returns the face groups of a user with the number of faces on
// live media. Labeled groups come first.
func (r reader) FaceGroups(ctx context.Context, ownerID int64) ([]FaceGroup, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("face_groups", start, err) }()

	var groups []FaceGroup
	err = sqlxSelect(ctx, r.q, &groups, `
		SELECT g.id, g.owner_id, g.label,
			(SELECT COUNT(*) FROM image_faces f JOIN media m ON m.id = f.media_id
				WHERE f.face_group_id = g.id AND m.deleted_at IS NULL) AS face_count
		FROM face_groups g WHERE g.owner_id = ?
		ORDER BY g.label IS NULL, g.label, g.id`, ownerID)
	return groups, err
}

// GetFaceGroup returns a face group with its live face count.
func (r reader) GetFaceGroup(ctx context.Context, id int64) (*FaceGroup, error) {
	var group FaceGroup
	err := sqlxGet(ctx, r.q, &group, `
		SELECT g.id, g.owner_id, g.label,
			(SELECT COUNT(*) FROM image_faces f JOIN media m ON m.id = f.media_id
				WHERE f.face_group_id = g.id AND m.deleted_at IS NULL) AS face_count
		FROM face_groups g WHERE g.id = ?`, id)
	if err != nil {
		return nil, notFound(err, "face group %d", id)
	}
	return &group, nil
}

// OwnerFaces returns every face on the live media of a user.
func (r reader) OwnerFaces(ctx context.Context, ownerID int64) ([]ImageFace, error) {
	var faces []ImageFace
	err := sqlxSelect(ctx, r.q, &faces, `SELECT `+faceColumns+`
		FROM image_faces f JOIN media m ON m.id = f.media_id
		WHERE m.owner_id = ? AND m.deleted_at IS NULL ORDER BY f.id`, ownerID)
	return faces, err
}

// GroupFaces returns the faces of a group on live media.
func (r reader) GroupFaces(ctx context.Context, groupID int64) ([]ImageFace, error) {
	var faces []ImageFace
	err := sqlxSelect(ctx, r.q, &faces, `SELECT `+faceColumns+`
		FROM image_faces f JOIN media m ON m.id = f.media_id
		WHERE f.face_group_id = ? AND m.deleted_at IS NULL ORDER BY f.id`, groupID)
	return faces, err
}

// MediaFaces returns the faces detected on a media.
func (r reader) MediaFaces(ctx context.Context, mediaID int64) ([]ImageFace, error) {
	var faces []ImageFace
	err := sqlxSelect(ctx, r.q, &faces, `SELECT `+faceColumns+`
		FROM image_faces f JOIN media m ON m.id = f.media_id
		WHERE f.media_id = ? ORDER BY f.id`, mediaID)
	return faces, err
}

// GetFaces returns the faces with the given ids. Unknown ids are absent from
// the result.
func (r reader) GetFaces(ctx context.Context, ids []int64) ([]ImageFace, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := in(r.q, `SELECT `+faceColumns+`
		FROM image_faces f JOIN media m ON m.id = f.media_id
		WHERE f.id IN (?) ORDER BY f.id`, ids)
	if err != nil {
		return nil, err
	}
	var faces []ImageFace
	err = sqlxSelect(ctx, r.q, &faces, query, args...)
	return faces, err
}

// CreateFaceGroup inserts a face group.
func (tx *Tx) CreateFaceGroup(ctx context.Context, ownerID int64, label *string) (int64, error) {
	res, err := tx.tx.ExecContext(ctx, `INSERT INTO face_groups (owner_id, label) VALUES (?, ?)`, ownerID, label)
	if err != nil {
		return 0, fmt.Errorf("failed to create face group: %w", err)
	}
	return res.LastInsertId()
}

// InsertFace stores a detected face.
func (tx *Tx) InsertFace(ctx context.Context, face *ImageFace) (int64, error) {
	res, err := tx.tx.ExecContext(ctx, `INSERT INTO image_faces
		(media_id, face_group_id, rect_min_x, rect_min_y, rect_max_x, rect_max_y, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		face.MediaID, face.FaceGroupID, face.MinX, face.MinY, face.MaxX, face.MaxY, face.Embedding)
	if err != nil {
		return 0, fmt.Errorf("failed to insert face: %w", err)
	}
	return res.LastInsertId()
}

// MoveFaces reassigns faces to dst.
func (tx *Tx) MoveFaces(ctx context.Context, faceIDs []int64, dst int64) error {
	if len(faceIDs) == 0 {
		return nil
	}
	query, args, err := in(tx.q, `UPDATE image_faces SET face_group_id = ? WHERE id IN (?)`, dst, faceIDs)
	if err != nil {
		return err
	}
	_, err = tx.tx.ExecContext(ctx, query, args...)
	return err
}

// MoveGroupFaces reassigns every face of src to dst.
func (tx *Tx) MoveGroupFaces(ctx context.Context, src, dst int64) error {
	_, err := tx.tx.ExecContext(ctx, `UPDATE image_faces SET face_group_id = ? WHERE face_group_id = ?`, dst, src)
	return err
}

// DeleteFaceGroup removes a group. It fails while faces still reference it.
func (tx *Tx) DeleteFaceGroup(ctx context.Context, id int64) error {
	_, err := tx.tx.ExecContext(ctx, `DELETE FROM face_groups WHERE id = ?`, id)
	return err
}

// DeleteMediaFaces removes the faces of a media.
func (tx *Tx) DeleteMediaFaces(ctx context.Context, mediaID int64) error {
	_, err := tx.tx.ExecContext(ctx, `DELETE FROM image_faces WHERE media_id = ?`, mediaID)
	return err
}

// DeleteEmptyFaceGroups removes the groups of owner without any face.
func (tx *Tx) DeleteEmptyFaceGroups(ctx context.Context, ownerID int64) (int64, error) {
	res, err := tx.tx.ExecContext(ctx, `DELETE FROM face_groups WHERE owner_id = ?
		AND NOT EXISTS (SELECT 1 FROM image_faces f WHERE f.face_group_id = face_groups.id)`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete empty face groups: %w", err)
	}
	return res.RowsAffected()
}

// SetFaceGroupLabel sets or clears the label of a group.
func (tx *Tx) SetFaceGroupLabel(ctx context.Context, id int64, label *string) error {
	_, err := tx.tx.ExecContext(ctx, `UPDATE face_groups SET label = ? WHERE id = ?`, label, id)
	return err
}

// DeleteFaceGroupsIfEmpty removes those of the given groups that no longer
// hold any face and returns how many were removed.
func (tx *Tx) DeleteFaceGroupsIfEmpty(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := in(tx.q, `DELETE FROM face_groups WHERE id IN (?)
		AND NOT EXISTS (SELECT 1 FROM image_faces f WHERE f.face_group_id = face_groups.id)`, ids)
	if err != nil {
		return 0, err
	}
	res, err := tx.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete empty face groups: %w", err)
	}
	return res.RowsAffected()
}
