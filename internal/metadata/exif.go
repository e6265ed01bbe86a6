package metadata

import (
	"strings"

	"github.com/rwcarlsen/goexif/exif"

	"photo-library/internal/database"
)

func photoEXIF(x *exif.Exif) *database.MediaEXIF {
	e := &database.MediaEXIF{
		Camera: stringField(x, exif.Model),
		Maker:  stringField(x, exif.Make),
		Lens:   stringField(x, exif.LensModel),
	}

	if t, err := x.DateTime(); err == nil && !t.IsZero() {
		e.DateShot = database.TimestampPtr(t)
	}
	if v, ok := ratField(x, exif.ExposureTime); ok {
		e.Exposure = &v
	}
	if v, ok := ratField(x, exif.FNumber); ok {
		e.Aperture = &v
	}
	if v, ok := ratField(x, exif.FocalLength); ok {
		e.FocalLength = &v
	}
	if v, ok := intField(x, exif.ISOSpeedRatings); ok {
		e.ISO = &v
	}
	if v, ok := intField(x, exif.Flash); ok {
		e.Flash = &v
	}
	if v, ok := intField(x, exif.ExposureProgram); ok {
		e.ExposureProgram = &v
	}
	if lat, long, err := x.LatLong(); err == nil && validCoordinate(lat, long) {
		e.GPSLatitude = &lat
		e.GPSLongitude = &long
	}
	return e
}

func stringField(x *exif.Exif, name exif.FieldName) *string {
	t, err := x.Get(name)
	if err != nil || t == nil {
		return nil
	}
	s, err := t.StringVal()
	if err != nil {
		return nil
	}
	s = strings.TrimSpace(strings.TrimRight(s, "\x00"))
	if s == "" {
		return nil
	}
	return &s
}

func ratField(x *exif.Exif, name exif.FieldName) (float64, bool) {
	t, err := x.Get(name)
	if err != nil || t == nil || t.Count == 0 {
		return 0, false
	}
	num, den, err := t.Rat2(0)
	if err != nil || den == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

func intField(x *exif.Exif, name exif.FieldName) (int64, bool) {
	t, err := x.Get(name)
	if err != nil || t == nil || t.Count == 0 {
		return 0, false
	}
	v, err := t.Int(0)
	if err != nil {
		return 0, false
	}
	return int64(v), true
}

func validCoordinate(lat, long float64) bool {
	if lat == 0 && long == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && long >= -180 && long <= 180
}
