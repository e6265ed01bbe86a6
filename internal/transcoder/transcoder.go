package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"photo-library/internal/apperr"
	"photo-library/internal/logging"
	"photo-library/internal/metrics"
)

// ErrDisabled is returned when a web rendition is requested while transcoding
// is turned off.
var ErrDisabled = errors.New("transcoding disabled")

// Transcoder runs ffprobe and ffmpeg on behalf of the metadata extractor and
// the thumbnail generator.
type Transcoder struct {
	workDir   string
	enabled   bool
	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// VideoInfo contains information about a video file.
type VideoInfo struct {
	Duration       float64 `json:"duration"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Codec          string  `json:"codec"`
	AudioCodec     string  `json:"audioCodec,omitempty"`
	Container      string  `json:"container"`
	NeedsTranscode bool    `json:"needsTranscode"`
}

// Rendition is a finished web rendition written below the work directory.
// The caller owns Path and removes it once stored.
type Rendition struct {
	Path   string
	Width  int
	Height int
	Size   int64
}

var compatibleCodecs = map[string]bool{
	"h264": true,
	"vp8":  true,
	"vp9":  true,
	"av1":  true,
}

var compatibleContainers = map[string]bool{
	"mp4":  true,
	"m4v":  true,
	"webm": true,
	"ogg":  true,
}

var compatibleAudio = map[string]bool{
	"":       true,
	"aac":    true,
	"mp3":    true,
	"opus":   true,
	"vorbis": true,
}

// New creates a new Transcoder. workDir holds renditions while they are
// being produced.
func New(workDir string, enabled bool) *Transcoder {
	return &Transcoder{
		workDir:   workDir,
		enabled:   enabled,
		processes: make(map[string]*exec.Cmd),
	}
}

// IsEnabled returns whether web renditions are produced.
func (t *Transcoder) IsEnabled() bool {
	return t.enabled
}

// Inspect runs ffprobe on filePath. Files ffprobe cannot read yield
// apperr.ErrUnsupported.
func (t *Transcoder) Inspect(ctx context.Context, filePath string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("ffprobe not available: %w", err)
		}
		return nil, fmt.Errorf("ffprobe %s: %v %s: %w", filePath, err, strings.TrimSpace(stderr.String()), apperr.ErrUnsupported)
	}

	result, err := parseMediaInfo(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %v: %w", filePath, err, apperr.ErrUnsupported)
	}
	return result, nil
}

// VideoInfo summarizes the container of filePath. A container without a
// video stream yields apperr.ErrUnsupported.
func (p *MediaInfo) VideoInfo(filePath string) (*VideoInfo, error) {
	return videoInfo(p, filePath)
}

func videoInfo(mi *MediaInfo, filePath string) (*VideoInfo, error) {
	video := mi.VideoStream()
	if video == nil {
		return nil, fmt.Errorf("%s has no video stream: %w", filePath, apperr.ErrUnsupported)
	}

	info := &VideoInfo{
		Width:     video.Width,
		Height:    video.Height,
		Codec:     video.CodecName,
		Container: strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), ".")),
	}
	if d, ok := mi.Duration(); ok {
		info.Duration = d
	}
	if audio := mi.AudioStream(); audio != nil {
		info.AudioCodec = audio.CodecName
	}

	info.NeedsTranscode = !compatibleCodecs[info.Codec] ||
		!compatibleContainers[info.Container] ||
		!compatibleAudio[info.AudioCodec]

	return info, nil
}

// ExtractFrame returns a still frame from a video, one second in when the
// video is long enough and the first frame otherwise.
func (t *Transcoder) ExtractFrame(ctx context.Context, filePath string) (image.Image, error) {
	start := time.Now()
	defer func() {
		metrics.ThumbnailFFmpegDuration.WithLabelValues("video").Observe(time.Since(start).Seconds())
	}()

	img, err := t.runFrame(ctx, filePath, "-ss", "00:00:01", "-i", filePath, "-frames:v", "1")
	if err == nil {
		return img, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logging.Debug("FFmpeg seek attempt failed for %s: %v", filePath, err)

	return t.runFrame(ctx, filePath, "-i", filePath, "-frames:v", "1")
}

// DecodeStill decodes an image format the Go decoders do not handle
// (HEIC, AVIF, raw) by letting ffmpeg convert it to PNG.
func (t *Transcoder) DecodeStill(ctx context.Context, filePath string) (image.Image, error) {
	start := time.Now()
	defer func() {
		metrics.ThumbnailFFmpegDuration.WithLabelValues("photo").Observe(time.Since(start).Seconds())
	}()

	return t.runFrame(ctx, filePath, "-i", filePath, "-frames:v", "1", "-pix_fmt", "rgb24")
}

func (t *Transcoder) runFrame(ctx context.Context, filePath string, args ...string) (image.Image, error) {
	args = append([]string{"-v", "error"}, args...)
	args = append(args, "-f", "image2pipe", "-vcodec", "png", "-")
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("ffmpeg not available: %w", err)
		}
		return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s: %w", err, strings.TrimSpace(stderr.String()), apperr.ErrUnsupported)
	}

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s: %w", filePath, apperr.ErrUnsupported)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %v: %w", err, apperr.ErrUnsupported)
	}
	return img, nil
}

// WebRendition transcodes filePath to an H.264/AAC MP4 below the work
// directory.
func (t *Transcoder) WebRendition(ctx context.Context, filePath string) (*Rendition, error) {
	if !t.enabled {
		metrics.TranscoderJobsTotal.WithLabelValues("skipped").Inc()
		return nil, ErrDisabled
	}

	if err := os.MkdirAll(t.workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transcode directory: %w", err)
	}
	out, err := os.CreateTemp(t.workDir, "web-*.mp4")
	if err != nil {
		return nil, fmt.Errorf("failed to create rendition file: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()

	start := time.Now()
	rendition, err := t.transcode(ctx, filePath, outPath)
	metrics.TranscoderJobDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TranscoderJobsTotal.WithLabelValues("error").Inc()
		_ = os.Remove(outPath)
		return nil, err
	}
	metrics.TranscoderJobsTotal.WithLabelValues("success").Inc()
	return rendition, nil
}

func (t *Transcoder) transcode(ctx context.Context, filePath, outPath string) (*Rendition, error) {
	args := []string{
		"-y",
		"-v", "error",
		"-i", filePath,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		"-f", "mp4",
		outPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.processMu.Lock()
	t.processes[filePath] = cmd
	t.processMu.Unlock()

	defer func() {
		t.processMu.Lock()
		delete(t.processes, filePath)
		t.processMu.Unlock()
	}()

	logging.Debug("Transcoding %s to web rendition", filePath)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Error("FFmpeg stderr: %s", stderr.String())
		return nil, fmt.Errorf("transcoding error: %w", err)
	}

	fi, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("rendition missing after transcode: %w", err)
	}

	rendition := &Rendition{Path: outPath, Size: fi.Size()}
	if mi, err := t.Inspect(ctx, outPath); err == nil {
		if v := mi.VideoStream(); v != nil {
			rendition.Width, rendition.Height = v.Width, v.Height
		}
	}
	return rendition, nil
}

// Cleanup stops all active transcoding processes.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for path, cmd := range t.processes {
		if cmd.Process != nil {
			logging.Info("Killing transcoding process for: %s", path)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill transcoding process for %s: %v", path, err)
			}
		}
	}
}

// ClearWorkDir removes renditions left behind by an interrupted run and
// returns the number of bytes freed.
func (t *Transcoder) ClearWorkDir() (int64, error) {
	if t.workDir == "" {
		return 0, nil
	}

	var freedBytes int64

	entries, err := os.ReadDir(t.workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read transcode directory: %w", err)
	}

	for _, entry := range entries {
		path := filepath.Join(t.workDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logging.Warn("failed to get info for %s: %v", path, err)
			continue
		}

		if entry.IsDir() {
			dirSize, _ := getDirSize(path)
			if err := os.RemoveAll(path); err != nil {
				logging.Warn("failed to remove directory %s: %v", path, err)
				continue
			}
			freedBytes += dirSize
		} else {
			if err := os.Remove(path); err != nil {
				logging.Warn("failed to remove file %s: %v", path, err)
				continue
			}
			freedBytes += info.Size()
		}
	}

	if freedBytes > 0 {
		logging.Info("Cleared transcode directory: freed %d bytes", freedBytes)
	}
	return freedBytes, nil
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// MediaInfo is the subset of ffprobe's JSON output the library uses.
type MediaInfo struct {
	Streams []StreamInfo `json:"streams"`
	Format  FormatInfo   `json:"format"`
}

// StreamInfo describes one stream of a container.
type StreamInfo struct {
	Index          int               `json:"index"`
	CodecType      string            `json:"codec_type"`
	CodecName      string            `json:"codec_name"`
	Profile        string            `json:"profile"`
	Width          int               `json:"width"`
	Height         int               `json:"height"`
	AvgFrameRate   string            `json:"avg_frame_rate"`
	RFrameRate     string            `json:"r_frame_rate"`
	BitRate        string            `json:"bit_rate"`
	ColorSpace     string            `json:"color_space"`
	ColorPrimaries string            `json:"color_primaries"`
	ColorTransfer  string            `json:"color_transfer"`
	Channels       int               `json:"channels"`
	ChannelLayout  string            `json:"channel_layout"`
	SampleRate     string            `json:"sample_rate"`
	Tags           map[string]string `json:"tags"`
}

// FormatInfo describes the container.
type FormatInfo struct {
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

func parseMediaInfo(data []byte) (*MediaInfo, error) {
	var result MediaInfo
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("invalid ffprobe output: %w", err)
	}
	if len(result.Streams) == 0 {
		return nil, errors.New("no streams")
	}
	return &result, nil
}

// VideoStream returns the first video stream, skipping attached cover art.
func (p *MediaInfo) VideoStream() *StreamInfo {
	for i := range p.Streams {
		s := &p.Streams[i]
		if s.CodecType == "video" && s.CodecName != "mjpeg" && s.CodecName != "png" {
			return s
		}
	}
	return nil
}

// AudioStream returns the first audio stream.
func (p *MediaInfo) AudioStream() *StreamInfo {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

// Duration returns the container duration in seconds.
func (p *MediaInfo) Duration() (float64, bool) {
	return parsePositiveFloat(p.Format.Duration)
}

// BitRate returns the container bitrate in bits per second.
func (p *MediaInfo) BitRate() (int64, bool) {
	if v, err := strconv.ParseInt(p.Format.BitRate, 10, 64); err == nil && v > 0 {
		return v, true
	}
	return 0, false
}

// CreationTime returns the container creation_time tag.
func (p *MediaInfo) CreationTime() (time.Time, bool) {
	raw := p.Format.Tags["creation_time"]
	if raw == "" {
		if v := p.VideoStream(); v != nil {
			raw = v.Tags["creation_time"]
		}
	}
	if raw == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil || ts.IsZero() || ts.Year() < 1971 {
		return time.Time{}, false
	}
	return ts, true
}

// FrameRate returns the average frame rate, falling back to the real base
// frame rate.
func (s *StreamInfo) FrameRate() (float64, bool) {
	if fr, ok := parseRational(s.AvgFrameRate); ok {
		return fr, true
	}
	return parseRational(s.RFrameRate)
}

// ColorProfile summarizes the color metadata of a video stream.
func (s *StreamInfo) ColorProfile() string {
	var parts []string
	for _, v := range []string{s.ColorSpace, s.ColorPrimaries, s.ColorTransfer} {
		if v != "" && v != "unknown" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "/")
}

// AudioDescription summarizes an audio stream, e.g. "aac stereo 48000 Hz".
func (s *StreamInfo) AudioDescription() string {
	parts := []string{s.CodecName}
	switch {
	case s.ChannelLayout != "":
		parts = append(parts, s.ChannelLayout)
	case s.Channels > 0:
		parts = append(parts, fmt.Sprintf("%d channels", s.Channels))
	}
	if s.SampleRate != "" {
		parts = append(parts, s.SampleRate+" Hz")
	}
	return strings.Join(parts, " ")
}

func parseRational(v string) (float64, bool) {
	num, den, found := strings.Cut(v, "/")
	if !found {
		return parsePositiveFloat(v)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || n <= 0 || d <= 0 {
		return 0, false
	}
	return n / d, true
}

func parsePositiveFloat(v string) (float64, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}
