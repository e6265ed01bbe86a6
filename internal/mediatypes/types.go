package mediatypes

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"photo-library/internal/apperr"
)

// MediaType is the kind of a catalogued media file.
type MediaType string

const (
	// MediaTypePhoto represents a still image.
	MediaTypePhoto MediaType = "photo"
	// MediaTypeVideo represents a video file.
	MediaTypeVideo MediaType = "video"
)

// PhotoExtensions maps file extensions to whether they are supported photo formats.
var PhotoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
	".heic": true,
	".heif": true,
	".avif": true,
	".cr2":  true,
	".nef":  true,
	".arw":  true,
	".dng":  true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
	".mts":  true,
	".ts":   true,
}

// strictPhotoExtensions are formats whose header is always recognised by
// DetectFormat. A file with one of these extensions and an unknown header is
// treated as corrupt.
var strictPhotoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Photos
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".cr2":  "image/x-canon-cr2",
	".nef":  "image/x-nikon-nef",
	".arw":  "image/x-sony-arw",
	".dng":  "image/x-adobe-dng",

	// Videos
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".webm": "video/webm",
	".m4v":  "video/x-m4v",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".mts":  "video/mp2t",
	".ts":   "video/mp2t",
}

// imageFormats are DetectFormat results that identify still images.
var imageFormats = map[string]bool{
	"jpeg": true, "png": true, "gif": true, "webp": true,
	"bmp": true, "tiff": true, "heif": true, "avif": true, "jxl": true,
}

// videoFormats are DetectFormat results that identify video containers.
var videoFormats = map[string]bool{
	"mp4-container": true, "quicktime": true, "matroska": true, "avi": true,
}

// TypeForExtension returns the media type for a lowercase extension including
// the leading dot. ok is false for unsupported extensions.
func TypeForExtension(ext string) (MediaType, bool) {
	if PhotoExtensions[ext] {
		return MediaTypePhoto, true
	}
	if VideoExtensions[ext] {
		return MediaTypeVideo, true
	}
	return "", false
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// IsMediaFile returns true if the file name has a supported media extension.
func IsMediaFile(name string) bool {
	_, ok := TypeForExtension(strings.ToLower(filepath.Ext(name)))
	return ok
}

// Classify decides whether path is a supported media file. The extension
// selects the candidate type and the content header confirms it; a header
// that clearly identifies the other kind wins over the extension.
// Unsupported and unreadable files return an error wrapping apperr.ErrUnsupported.
func Classify(path string) (MediaType, error) {
	ext := strings.ToLower(filepath.Ext(path))
	candidate, ok := TypeForExtension(ext)
	if !ok {
		return "", fmt.Errorf("%s: unknown extension %q: %w", path, ext, apperr.ErrUnsupported)
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%s: %v: %w", path, err, apperr.ErrUnsupported)
	}
	defer file.Close()

	header := make([]byte, 32)
	n, err := io.ReadFull(file, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("%s: failed to read header: %v: %w", path, err, apperr.ErrUnsupported)
	}
	format := DetectFormat(header[:n])

	switch {
	case imageFormats[format]:
		return MediaTypePhoto, nil
	case videoFormats[format]:
		return MediaTypeVideo, nil
	case strictPhotoExtensions[ext]:
		return "", fmt.Errorf("%s: content does not match extension %q: %w", path, ext, apperr.ErrUnsupported)
	}
	return candidate, nil
}

// DetectFormat sniffs a file header and returns a short format name, or
// "unknown".
func DetectFormat(header []byte) string {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "jpeg"

	case len(header) >= 8 && header[0] == 0x89 && header[1] == 0x50 && header[2] == 0x4E && header[3] == 0x47:
		return "png"

	case len(header) >= 4 && header[0] == 0x47 && header[1] == 0x49 && header[2] == 0x46 && header[3] == 0x38:
		return "gif"

	case len(header) >= 12 && string(header[0:4]) == "RIFF" && string(header[8:12]) == "WEBP":
		return "webp"

	case len(header) >= 12 && string(header[0:4]) == "RIFF" && string(header[8:11]) == "AVI":
		return "avi"

	case len(header) >= 2 && header[0] == 0x42 && header[1] == 0x4D:
		return "bmp"

	case len(header) >= 4 && ((header[0] == 0x49 && header[1] == 0x49 && header[2] == 0x2A && header[3] == 0x00) ||
		(header[0] == 0x4D && header[1] == 0x4D && header[2] == 0x00 && header[3] == 0x2A)):
		return "tiff"

	case len(header) >= 12 && string(header[4:8]) == "ftyp":
		brand := string(header[8:12])
		switch brand {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return "heif"
		case "avif", "avis":
			return "avif"
		case "qt  ":
			return "quicktime"
		}
		return "mp4-container"

	case len(header) >= 4 && header[0] == 0x1A && header[1] == 0x45 && header[2] == 0xDF && header[3] == 0xA3:
		return "matroska"

	case len(header) >= 2 && header[0] == 0xFF && header[1] == 0x0A:
		return "jxl"

	case len(header) >= 12 && header[0] == 0x00 && header[1] == 0x00 && header[2] == 0x00 && header[3] == 0x0C &&
		header[4] == 0x4A && header[5] == 0x58 && header[6] == 0x4C && header[7] == 0x20:
		return "jxl"
	}

	return "unknown"
}
