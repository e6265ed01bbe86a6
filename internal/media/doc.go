// Package media produces the derived assets of photos and videos.
//
// The Generator supports:
//   - Photos: "thumbnail" (fit 1024) and "highres" (fit 2560) JPEGs
//   - Videos: a "video-thumbnail" JPEG from a keyframe and, when the source
//     is not browser compatible, a "video-web" H.264/AAC rendition
//   - A 4x3 component blurhash for every media
//
// Assets are stored under keys derived from the media identity and the
// purpose, so regeneration replaces the previous asset.
package media
