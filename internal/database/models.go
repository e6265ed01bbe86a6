package database

import (
	"database/sql/driver"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// MediaType is the kind of a media record.
type MediaType string

const (
	MediaTypePhoto MediaType = "photo"
	MediaTypeVideo MediaType = "video"
)

// URL purposes of derived assets.
const (
	PurposeThumbnail      = "thumbnail"
	PurposeHighRes        = "highres"
	PurposeVideoWeb       = "video-web"
	PurposeVideoThumbnail = "video-thumbnail"
)

// Timestamp stores a time as unix nanoseconds.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// TimestampPtr returns a pointer to a Timestamp for t.
func TimestampPtr(t time.Time) *Timestamp {
	ts := NewTimestamp(t)
	return &ts
}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	return t.UnixNano(), nil
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		t.Time = time.Unix(0, v).UTC()
		return nil
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Timestamp", src)
	}
}

// Embedding is a face descriptor stored as little-endian float32 values.
type Embedding []float32

// Value implements driver.Valuer.
func (e Embedding) Value() (driver.Value, error) {
	buf := make([]byte, 4*len(e))
	for i, f := range e {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf, nil
}

// Scan implements sql.Scanner.
func (e *Embedding) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into Embedding", src)
	}
	if len(b)%4 != 0 {
		return fmt.Errorf("embedding blob has invalid length %d", len(b))
	}
	out := make(Embedding, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	*e = out
	return nil
}

// User owns root paths, albums, media and face groups.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Admin     bool      `db:"admin" json:"admin"`
	CreatedAt Timestamp `db:"created_at" json:"createdAt"`
}

// RootPath is a directory scanned on behalf of its owner.
type RootPath struct {
	ID      int64  `db:"id" json:"id"`
	OwnerID int64  `db:"owner_id" json:"ownerId"`
	Path    string `db:"path" json:"path"`
	AlbumID int64  `db:"album_id" json:"albumId"`
}

// Album mirrors a directory below a root path.
type Album struct {
	ID            int64      `db:"id" json:"id"`
	Title         string     `db:"title" json:"title"`
	Path          string     `db:"path" json:"path"`
	ParentAlbumID *int64     `db:"parent_album_id" json:"parentAlbumId,omitempty"`
	OwnerID       int64      `db:"owner_id" json:"ownerId"`
	CoverID       *int64     `db:"cover_id" json:"coverId,omitempty"`
	DeletedAt     *Timestamp `db:"deleted_at" json:"deletedAt,omitempty"`
	LastSeen      Timestamp  `db:"last_seen" json:"-"`
}

// Tombstoned reports whether the album's directory has disappeared.
func (a *Album) Tombstoned() bool {
	return a.DeletedAt != nil
}

// Media is a photo or video file.
type Media struct {
	ID          int64      `db:"id" json:"id"`
	Title       string     `db:"title" json:"title"`
	Path        string     `db:"path" json:"path"`
	Type        MediaType  `db:"type" json:"type"`
	AlbumID     int64      `db:"album_id" json:"albumId"`
	OwnerID     int64      `db:"owner_id" json:"ownerId"`
	DateShot    Timestamp  `db:"date_shot" json:"dateShot"`
	Favorite    bool       `db:"favorite" json:"favorite"`
	Blurhash    *string    `db:"blurhash" json:"blurhash,omitempty"`
	Fingerprint string     `db:"fingerprint" json:"-"`
	DeletedAt   *Timestamp `db:"deleted_at" json:"deletedAt,omitempty"`
	LastSeen    Timestamp  `db:"last_seen" json:"-"`
	CreatedAt   Timestamp  `db:"created_at" json:"createdAt"`
}

// Tombstoned reports whether the media's file has disappeared.
func (m *Media) Tombstoned() bool {
	return m.DeletedAt != nil
}

// MediaEXIF holds photo metadata. Absent values are nil.
type MediaEXIF struct {
	MediaID         int64      `db:"media_id" json:"-"`
	Camera          *string    `db:"camera" json:"camera,omitempty"`
	Maker           *string    `db:"maker" json:"maker,omitempty"`
	Lens            *string    `db:"lens" json:"lens,omitempty"`
	DateShot        *Timestamp `db:"date_shot" json:"dateShot,omitempty"`
	Exposure        *float64   `db:"exposure" json:"exposure,omitempty"`
	Aperture        *float64   `db:"aperture" json:"aperture,omitempty"`
	ISO             *int64     `db:"iso" json:"iso,omitempty"`
	FocalLength     *float64   `db:"focal_length" json:"focalLength,omitempty"`
	Flash           *int64     `db:"flash" json:"flash,omitempty"`
	ExposureProgram *int64     `db:"exposure_program" json:"exposureProgram,omitempty"`
	GPSLatitude     *float64   `db:"gps_latitude" json:"gpsLatitude,omitempty"`
	GPSLongitude    *float64   `db:"gps_longitude" json:"gpsLongitude,omitempty"`
}

// VideoMetadata holds container and stream information. Absent values are nil.
type VideoMetadata struct {
	MediaID      int64    `db:"media_id" json:"-"`
	Width        *int64   `db:"width" json:"width,omitempty"`
	Height       *int64   `db:"height" json:"height,omitempty"`
	Duration     *float64 `db:"duration" json:"duration,omitempty"`
	Codec        *string  `db:"codec" json:"codec,omitempty"`
	Framerate    *float64 `db:"framerate" json:"framerate,omitempty"`
	Bitrate      *int64   `db:"bitrate" json:"bitrate,omitempty"`
	ColorProfile *string  `db:"color_profile" json:"colorProfile,omitempty"`
	Audio        *string  `db:"audio" json:"audio,omitempty"`
}

// MediaURL is a derived asset of a media record.
type MediaURL struct {
	ID          int64  `db:"id" json:"id"`
	MediaID     int64  `db:"media_id" json:"mediaId"`
	Purpose     string `db:"purpose" json:"purpose"`
	StorageKey  string `db:"storage_key" json:"storageKey"`
	ContentType string `db:"content_type" json:"contentType"`
	Width       int    `db:"width" json:"width"`
	Height      int    `db:"height" json:"height"`
	FileSize    int64  `db:"file_size" json:"fileSize"`
}

// Rect is a face rectangle normalized to [0,1] on both axes.
type Rect struct {
	MinX float64 `db:"rect_min_x" json:"minX"`
	MinY float64 `db:"rect_min_y" json:"minY"`
	MaxX float64 `db:"rect_max_x" json:"maxX"`
	MaxY float64 `db:"rect_max_y" json:"maxY"`
}

// ImageFace is a detected face. Every face belongs to exactly one group.
type ImageFace struct {
	ID          int64     `db:"id" json:"id"`
	MediaID     int64     `db:"media_id" json:"mediaId"`
	FaceGroupID int64     `db:"face_group_id" json:"faceGroupId"`
	OwnerID     int64     `db:"owner_id" json:"-"`
	Embedding   Embedding `db:"embedding" json:"-"`
	Rect
}

// FaceGroup is a cluster of faces believed to be the same person.
type FaceGroup struct {
	ID        int64   `db:"id" json:"id"`
	OwnerID   int64   `db:"owner_id" json:"ownerId"`
	Label     *string `db:"label" json:"label,omitempty"`
	FaceCount int     `db:"face_count" json:"faceCount"`
}

// Labeled reports whether the group carries a label.
func (g *FaceGroup) Labeled() bool {
	return g.Label != nil
}

// ShareToken grants access to exactly one album or one media.
type ShareToken struct {
	ID           int64      `db:"id" json:"id"`
	Value        string     `db:"value" json:"token"`
	OwnerID      int64      `db:"owner_id" json:"ownerId"`
	Expire       *Timestamp `db:"expire" json:"expire,omitempty"`
	PasswordHash *string    `db:"password_hash" json:"-"`
	AlbumID      *int64     `db:"album_id" json:"albumId,omitempty"`
	MediaID      *int64     `db:"media_id" json:"mediaId,omitempty"`
	CreatedAt    Timestamp  `db:"created_at" json:"createdAt"`
}

// HasPassword reports whether the token is password protected.
func (s *ShareToken) HasPassword() bool {
	return s.PasswordHash != nil
}

// ShareTarget identifies what a share token points at. Exactly one field is set.
type ShareTarget struct {
	AlbumID *int64 `json:"albumId,omitempty"`
	MediaID *int64 `json:"mediaId,omitempty"`
}

// Valid reports whether exactly one target is set.
func (t ShareTarget) Valid() bool {
	return (t.AlbumID == nil) != (t.MediaID == nil)
}

// TimelineGroup is a run of media shot on the same day in the same album.
type TimelineGroup struct {
	Date       time.Time `json:"date"`
	AlbumID    int64     `json:"albumId"`
	AlbumTitle string    `json:"albumTitle"`
	Media      []Media   `json:"media"`
}

// SiteInfo holds the persisted scanner settings.
type SiteInfo struct {
	PeriodicScanInterval int    `json:"periodicScanInterval"`
	ConcurrentWorkers    int    `json:"concurrentWorkers"`
	ThumbnailMethod      string `json:"thumbnailMethod"`
}
