package media

import (
	"fmt"
	"sort"

	"github.com/disintegration/imaging"

	"photo-library/internal/apperr"
)

// Thumbnail downsample methods.
const (
	FilterNearestNeighbor   = "NearestNeighbor"
	FilterBox               = "Box"
	FilterLinear            = "Linear"
	FilterMitchellNetravali = "MitchellNetravali"
	FilterCatmullRom        = "CatmullRom"
	FilterLanczos           = "Lanczos"

	DefaultFilter = FilterNearestNeighbor
)

var filters = map[string]imaging.ResampleFilter{
	FilterNearestNeighbor:   imaging.NearestNeighbor,
	FilterBox:               imaging.Box,
	FilterLinear:            imaging.Linear,
	FilterMitchellNetravali: imaging.MitchellNetravali,
	FilterCatmullRom:        imaging.CatmullRom,
	FilterLanczos:           imaging.Lanczos,
}

// ParseFilter returns the resampling filter named name.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	f, ok := filters[name]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown thumbnail method %q: %w", name, apperr.ErrInvalidArgument)
	}
	return f, nil
}

// ValidFilter reports whether name is a known downsample method.
func ValidFilter(name string) bool {
	_, ok := filters[name]
	return ok
}

// FilterNames lists the downsample methods in alphabetical order.
func FilterNames() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
