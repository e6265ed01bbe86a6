// Package transcoder wraps FFmpeg and ffprobe.
//
// It supports:
//   - Probing containers for stream, duration and creation time metadata
//   - Extracting a still frame from a video for thumbnails
//   - Decoding still formats the Go image decoders cannot read
//   - Producing H.264/AAC MP4 web renditions for incompatible videos
//
// FFmpeg and ffprobe must be installed and available in the system PATH.
package transcoder
