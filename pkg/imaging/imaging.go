// Package imaging handles the pictures attached to birthday messages: data URL
// parsing and shrinking oversized photos before they are stored.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrNotDataURL     = errors.New("not a data URL")
	ErrInvalidPayload = errors.New("invalid base64 payload")
	ErrEmptyImage     = errors.New("empty image")
)

// DataURL is a decoded data: URL
type DataURL struct {
	MediaType string
	Data      []byte
}

// ParseDataURL decodes "data:<type>;base64,<payload>". A bare base64 payload
// is accepted too and its media type is sniffed from the bytes.
func ParseDataURL(s string) (DataURL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DataURL{}, ErrEmptyImage
	}

	mediaType := ""
	payload := s
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return DataURL{}, ErrNotDataURL
		}
		header := s[len("data:"):comma]
		if !strings.HasSuffix(header, ";base64") {
			return DataURL{}, fmt.Errorf("%w: only base64 data URLs are supported", ErrNotDataURL)
		}
		mediaType = strings.TrimSuffix(header, ";base64")
		payload = s[comma+1:]
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return DataURL{}, err
	}
	if len(data) == 0 {
		return DataURL{}, ErrEmptyImage
	}
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	return DataURL{MediaType: mediaType, Data: data}, nil
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)

	data, err := base64.StdEncoding.DecodeString(payload)
	if err == nil {
		return data, nil
	}
	if data, rawErr := base64.RawStdEncoding.DecodeString(payload); rawErr == nil {
		return data, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
}

// EncodeDataURL renders bytes as a base64 data URL
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Extension returns the file extension for an image media type
func Extension(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ".jpg"
	}
}

// Options controls Compress
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int
}

// DefaultOptions fits pictures inside 800x800 at JPEG quality 60
func DefaultOptions() Options {
	return Options{MaxWidth: 800, MaxHeight: 800, Quality: 60}
}

// Info describes an encoded image without decoding its pixels
type Info struct {
	Format string
	Width  int
	Height int
	Bytes  int
}

// Inspect reads the image header
func Inspect(data []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("failed to read image header: %w", err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height, Bytes: len(data)}, nil
}

// Compress decodes any supported format, shrinks it to fit the bounds while
// keeping the aspect ratio, and re-encodes it as JPEG. Images already inside
// the bounds are only re-encoded.
func Compress(data []byte, opts Options) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions().Quality
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := fit(bounds.Dx(), bounds.Dy(), opts.MaxWidth, opts.MaxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	// JPEG has no alpha channel; transparent areas become white
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fit scales w x h down to fit inside maxW x maxH
func fit(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return 1, 1
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	nw := int(float64(w)*scale + 0.5)
	nh := int(float64(h)*scale + 0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}
