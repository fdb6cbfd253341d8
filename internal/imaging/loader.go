package imaging

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrUnsupportedFormat is returned for inputs that are not a still image
// this package can decode.
var ErrUnsupportedFormat = errors.New("unsupported image format")

var videoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

// IsVideoName reports whether name carries a video file extension.
func IsVideoName(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// FrameCache provides thread-safe caching of decoded frames keyed by path.
//
// Frames are read-only once decoded, so a cached frame can be handed to
// several pipeline runs at the same time.
type FrameCache struct {
	mu     sync.RWMutex
	frames map[string]image.Image
}

// NewFrameCache creates an empty frame cache.
func NewFrameCache() *FrameCache {
	return &FrameCache{
		frames: make(map[string]image.Image),
	}
}

// Load retrieves a frame from the cache or decodes it from disk.
//
// The frame is cached under the exact path string provided. Video files are
// rejected with ErrUnsupportedFormat before any I/O happens.
func (c *FrameCache) Load(path string) (image.Image, error) {
	if IsVideoName(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	c.mu.RLock()
	if img, ok := c.frames[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := DecodeFrame(f)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.frames[path] = img
	c.mu.Unlock()

	return img, nil
}

// Evict removes a single path from the cache.
func (c *FrameCache) Evict(path string) {
	c.mu.Lock()
	delete(c.frames, path)
	c.mu.Unlock()
}

// Clear drops every cached frame.
func (c *FrameCache) Clear() {
	c.mu.Lock()
	c.frames = make(map[string]image.Image)
	c.mu.Unlock()
}

// Len returns the number of cached frames.
func (c *FrameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// DecodeFrame decodes a PNG, JPEG or GIF image from r.
//
// Returns the decoded image and the format name reported by the decoder.
// Anything the registered decoders cannot read is reported as
// ErrUnsupportedFormat.
func DecodeFrame(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: image has no pixels", ErrUnsupportedFormat)
	}
	return img, format, nil
}

// FrameInfo describes a decoded frame.
type FrameInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"`
}

// Info returns the dimensions of img.
func Info(img image.Image, format string) FrameInfo {
	b := img.Bounds()
	return FrameInfo{Width: b.Dx(), Height: b.Dy(), Format: format}
}
