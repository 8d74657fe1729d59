package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/pkg/blob"
	"birthday-wall/backend/pkg/imaging"
	"birthday-wall/backend/pkg/logger"
	"birthday-wall/backend/shared/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNoImageData   = errors.New("no image data provided")
	ErrInvalidImage  = errors.New("invalid image data")
	ErrImageTooLarge = errors.New("image too large")
	ErrNotPublic     = errors.New("blob is not public")
)

// ImageServiceConfig configures uploads
type ImageServiceConfig struct {
	// Prefix is prepended to uploaded file names
	Prefix string
	// MaxBytes rejects decoded images above this size; zero means no limit
	MaxBytes int64
	// CompressAbove recompresses images larger than this; zero disables it
	CompressAbove int64
	Compress      imaging.Options
}

// Upload describes a stored picture
type Upload struct {
	Key         string `json:"fileName"`
	URL         string `json:"imageUrl"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Compressed  bool   `json:"compressed,omitempty"`
}

// ImageService stores pictures in the blob store
type ImageService struct {
	store   blob.Store
	config  ImageServiceConfig
	metrics *observability.WallMetrics
	log     *logger.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewImageService creates an image service. metrics may be nil.
func NewImageService(store blob.Store, config ImageServiceConfig, metrics *observability.WallMetrics, log *logger.Logger) *ImageService {
	if metrics == nil {
		metrics, _ = observability.NewWallMetrics(nil)
	}
	if config.Compress == (imaging.Options{}) {
		config.Compress = imaging.DefaultOptions()
	}
	return &ImageService{
		store:   store,
		config:  config,
		metrics: metrics,
		log:     log.WithComponent("images"),
		tracer:  otel.Tracer("birthday-wall/service"),
		now:     time.Now,
	}
}

// Upload stores a data URL under <prefix><unix ms>-<fileName>
func (s *ImageService) Upload(ctx context.Context, imageData, fileName string) (Upload, error) {
	ctx, span := s.tracer.Start(ctx, "images.upload")
	defer span.End()

	name := sanitizeFileName(fileName)
	key := fmt.Sprintf("%s%d-%s", s.config.Prefix, s.now().UnixMilli(), name)
	up, err := s.put(ctx, key, imageData)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return Upload{}, err
	}
	span.SetAttributes(attribute.String("blob.key", up.Key), attribute.Int64("blob.size", up.Size))
	return up, nil
}

// Externalize moves an inline picture of message id into its own blob,
// image-<id>.jpg, and returns its URL
func (s *ImageService) Externalize(ctx context.Context, id models.Identity, dataURL string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "images.externalize")
	defer span.End()

	up, err := s.put(ctx, fmt.Sprintf("image-%s.jpg", id), dataURL)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return up.URL, nil
}

func (s *ImageService) put(ctx context.Context, key, imageData string) (Upload, error) {
	if strings.TrimSpace(imageData) == "" {
		return Upload{}, ErrNoImageData
	}
	img, err := imaging.ParseDataURL(imageData)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if s.config.MaxBytes > 0 && int64(len(img.Data)) > s.config.MaxBytes {
		return Upload{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, len(img.Data), s.config.MaxBytes)
	}

	data, contentType, compressed := img.Data, img.MediaType, false
	if s.config.CompressAbove > 0 && int64(len(data)) > s.config.CompressAbove {
		small, err := imaging.Compress(data, s.config.Compress)
		if err != nil {
			// Undecodable formats are stored as they came
			s.log.Warn("Failed to compress image, storing original", "key", key, "error", err.Error())
		} else if len(small) < len(data) {
			data, contentType, compressed = small, "image/jpeg", true
		}
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = "image/jpeg"
	}

	obj, err := s.store.Put(ctx, key, data, blob.PutOptions{
		ContentType: contentType,
		Public:      true,
		Overwrite:   true,
	})
	if err != nil {
		return Upload{}, fmt.Errorf("failed to store image: %w", err)
	}
	s.metrics.ImagesUploaded.Add(ctx, 1)
	s.log.Info("Image stored",
		"key", obj.Key,
		"bytes", obj.Size,
		"compressed", compressed,
	)
	return Upload{Key: obj.Key, URL: obj.URL, ContentType: contentType, Size: obj.Size, Compressed: compressed}, nil
}

// FetchPublic returns a public blob for serving
func (s *ImageService) FetchPublic(ctx context.Context, key string) ([]byte, blob.Object, error) {
	data, obj, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, blob.Object{}, err
	}
	if !obj.Public {
		return nil, blob.Object{}, ErrNotPublic
	}
	return data, obj, nil
}

// sanitizeFileName keeps the base name and replaces characters that do not
// belong in a key
func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image.jpg"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

// ImageInfo describes the picture of one message
type ImageInfo struct {
	Name        string `json:"name"`
	HasImage    bool   `json:"hasImage"`
	HasImageURL bool   `json:"hasImageUrl"`
	ImageSize   int    `json:"imageSize"`
	ImageType   string `json:"imageType,omitempty"`
}

// ImageStats summarizes pictures across the wall
type ImageStats struct {
	TotalMessages      int         `json:"totalMessages"`
	MessagesWithImages int         `json:"messagesWithImages"`
	ImageInfo          []ImageInfo `json:"imageInfo"`
}

// BuildImageStats reports which messages carry pictures and how big the
// inline ones are
func BuildImageStats(msgs []models.Message) ImageStats {
	stats := ImageStats{TotalMessages: len(msgs), ImageInfo: []ImageInfo{}}
	for _, m := range msgs {
		if m.Image == "" && m.ImageURL == "" {
			continue
		}
		stats.MessagesWithImages++
		info := ImageInfo{
			Name:        m.Name,
			HasImage:    m.Image != "",
			HasImageURL: m.ImageURL != "",
			ImageSize:   len(m.Image),
		}
		if m.Image != "" {
			info.ImageType = m.Image[:min(len(m.Image), 30)]
		}
		stats.ImageInfo = append(stats.ImageInfo, info)
	}
	return stats
}
