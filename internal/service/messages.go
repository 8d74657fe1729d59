package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/internal/reconcile"
	"birthday-wall/backend/internal/sources"
	"birthday-wall/backend/pkg/blob"
	"birthday-wall/backend/pkg/cache"
	"birthday-wall/backend/pkg/imaging"
	"birthday-wall/backend/pkg/logger"
	"birthday-wall/backend/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidMessage    = errors.New("invalid message")
	ErrCorruptCollection = errors.New("stored message collection is not valid JSON")
)

const snapshotCacheKey = "messages"

// Notifier is told about changes to the wall
type Notifier interface {
	MessageCreated(m models.Message)
	MessagesReplaced(count int, reason string)
}

type nopNotifier struct{}

func (nopNotifier) MessageCreated(models.Message) {}
func (nopNotifier) MessagesReplaced(int, string)  {}

// MessageServiceOptions configures a MessageService
type MessageServiceOptions struct {
	// Key is the blob key of the canonical collection
	Key string
	// Rules are the reconcile rules used when a request does not bring its own
	Rules reconcile.Rules
	// Cache holds the last read snapshot; nil disables caching
	Cache    *cache.Cache[[]models.Message]
	Notifier Notifier
	Metrics  *observability.WallMetrics
}

// MessageService reads and writes the canonical message collection
type MessageService struct {
	store   blob.Store
	images  *ImageService
	options MessageServiceOptions
	log     *logger.Logger
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// NewMessageService creates the service. images is used by BatchRestore to
// move inline pictures out of the collection.
func NewMessageService(store blob.Store, images *ImageService, options MessageServiceOptions, log *logger.Logger) *MessageService {
	if options.Key == "" {
		options.Key = "birthday-messages.json"
	}
	if options.Notifier == nil {
		options.Notifier = nopNotifier{}
	}
	if options.Metrics == nil {
		options.Metrics, _ = observability.NewWallMetrics(nil)
	}
	return &MessageService{
		store:   store,
		images:  images,
		options: options,
		log:     log.WithComponent("messages"),
		tracer:  otel.Tracer("birthday-wall/service"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SetNotifier replaces the change notifier
func (s *MessageService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.options.Notifier = n
}

// Rules returns the default reconcile rules
func (s *MessageService) Rules() reconcile.Rules {
	return s.options.Rules
}

// List returns the canonical collection, empty when nothing is stored yet
func (s *MessageService) List(ctx context.Context) ([]models.Message, error) {
	if s.options.Cache != nil {
		if msgs, ok := s.options.Cache.Get(snapshotCacheKey); ok {
			return slices.Clone(msgs), nil
		}
	}

	ctx, span := s.tracer.Start(ctx, "messages.list")
	defer span.End()

	msgs, err := s.read(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("messages.count", len(msgs)))

	if s.options.Cache != nil {
		s.options.Cache.Set(snapshotCacheKey, slices.Clone(msgs))
	}
	return msgs, nil
}

// Count returns the number of stored messages, zero when unreadable
func (s *MessageService) Count(ctx context.Context) int {
	msgs, err := s.List(ctx)
	if err != nil {
		return 0
	}
	return len(msgs)
}

func (s *MessageService) read(ctx context.Context) ([]models.Message, error) {
	data, _, err := s.store.Get(ctx, s.options.Key)
	if errors.Is(err, blob.ErrNotFound) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	msgs, err := sources.DecodeJSON(bytes.NewReader(data))
	if err != nil {
		s.log.LogError(err, "Stored collection does not decode", "key", s.options.Key)
		return nil, fmt.Errorf("%w: %v", ErrCorruptCollection, err)
	}
	return msgs, nil
}

// NewMessage is a visitor submission
type NewMessage struct {
	Name     string `json:"name"`
	Message  string `json:"message"`
	Image    string `json:"image,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Append adds one submission to the collection. This is a read-modify-write
// without a lock; concurrent appends can lose one another and Replace with
// a reconciled list is the recovery path.
func (s *MessageService) Append(ctx context.Context, in NewMessage) (models.Message, blob.Object, error) {
	ctx, span := s.tracer.Start(ctx, "messages.append")
	defer span.End()

	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Message) == "" {
		return models.Message{}, blob.Object{}, fmt.Errorf("%w: name and message are required", ErrInvalidMessage)
	}

	m := models.Message{
		Name:      in.Name,
		Body:      in.Message,
		Image:     in.Image,
		ImageURL:  in.ImageURL,
		ID:        models.Identity(s.newID()),
		Timestamp: models.FormatTimestamp(s.now()),
	}
	if m.Attachment() == models.AttachmentInline {
		if _, err := imaging.ParseDataURL(m.Image); err != nil {
			s.log.Warn("Dropping unreadable picture from submission", "name", m.Name, "error", err.Error())
			m.DropAttachment()
		}
	}
	m.HasImage = m.HasAttachment()

	msgs, err := s.read(ctx)
	if err != nil {
		span.RecordError(err)
		return models.Message{}, blob.Object{}, err
	}
	msgs = append(msgs, m)

	obj, err := s.write(ctx, msgs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return models.Message{}, blob.Object{}, err
	}

	s.options.Metrics.MessagesSubmitted.Add(ctx, 1)
	s.options.Notifier.MessageCreated(m)
	logger.FromCtx(ctx, s.log).Info("Message appended", "id", string(m.ID), "count", len(msgs))
	return m, obj, nil
}

// Replace overwrites the whole collection. It is the only write the
// reconciler's output goes through.
func (s *MessageService) Replace(ctx context.Context, msgs []models.Message, reason string) (blob.Object, error) {
	ctx, span := s.tracer.Start(ctx, "messages.replace",
		trace.WithAttributes(attribute.Int("messages.count", len(msgs)), attribute.String("reason", reason)))
	defer span.End()

	if msgs == nil {
		msgs = []models.Message{}
	}
	obj, err := s.write(ctx, msgs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return blob.Object{}, err
	}

	s.options.Metrics.Restores.Add(ctx, 1, otelReason(reason))
	s.options.Notifier.MessagesReplaced(len(msgs), reason)
	logger.FromCtx(ctx, s.log).Info("Message collection replaced", "count", len(msgs), "reason", reason)
	return obj, nil
}

func otelReason(reason string) metric.AddOption {
	return metric.WithAttributes(attribute.String("reason", reason))
}

// Reset empties the collection
func (s *MessageService) Reset(ctx context.Context) (blob.Object, error) {
	return s.Replace(ctx, []models.Message{}, "reset")
}

func (s *MessageService) write(ctx context.Context, msgs []models.Message) (blob.Object, error) {
	var buf bytes.Buffer
	if err := sources.EncodeJSON(&buf, msgs); err != nil {
		return blob.Object{}, fmt.Errorf("failed to encode messages: %w", err)
	}

	obj, err := s.store.Put(ctx, s.options.Key, buf.Bytes(), blob.PutOptions{
		ContentType: "application/json; charset=utf-8",
		Public:      true,
		Overwrite:   true,
	})
	// After the Put, so a List racing the write cannot cache the old blob
	if s.options.Cache != nil {
		s.options.Cache.Delete(snapshotCacheKey)
	}
	if err != nil {
		return blob.Object{}, fmt.Errorf("failed to write messages: %w", err)
	}
	return obj, nil
}

// BatchRestore rebuilds the collection from exported messages: each gets a
// fresh id, its original timestamp (or now) and its 1-based position.
// Inline pictures are moved to their own blobs; a picture that cannot be
// stored is dropped and the message kept.
func (s *MessageService) BatchRestore(ctx context.Context, inputs []models.Message) ([]models.Message, blob.Object, error) {
	ctx, span := s.tracer.Start(ctx, "messages.batch_restore",
		trace.WithAttributes(attribute.Int("messages.count", len(inputs))))
	defer span.End()

	log := logger.FromCtx(ctx, s.log)
	now := models.FormatTimestamp(s.now())
	out := make([]models.Message, 0, len(inputs))
	for i, in := range inputs {
		m := models.Message{
			Name:      in.Name,
			Body:      in.Body,
			ID:        models.Identity(s.newID()),
			Timestamp: in.OriginalTimestamp,
			Index:     i + 1,
		}
		if m.Timestamp == "" {
			m.Timestamp = now
		}

		switch in.Attachment() {
		case models.AttachmentRemote:
			m.ImageURL = in.AttachmentRef()
			m.HasImage = true
		case models.AttachmentInline:
			if s.images == nil {
				log.Warn("No image store configured, dropping picture", "name", in.Name)
				break
			}
			url, err := s.images.Externalize(ctx, m.ID, in.Image)
			if err != nil {
				log.Warn("Failed to store picture, keeping message without it",
					"name", in.Name,
					"error", err.Error(),
				)
				break
			}
			m.ImageURL = url
			m.HasImage = true
		}
		out = append(out, m)
	}

	obj, err := s.Replace(ctx, out, "batch-restore")
	if err != nil {
		return nil, blob.Object{}, err
	}
	return out, obj, nil
}

// ReconcileRequest describes a reconciliation run
type ReconcileRequest struct {
	// Sources are merged in order, most trusted first
	Sources []reconcile.Source
	// IncludeLive puts the current collection in front of Sources
	IncludeLive bool
	// Rules overrides the service's rules when set
	Rules *reconcile.Rules
	// Apply writes the result back with Replace
	Apply bool
}

// ReconcileResult is the reconciler output and, when applied, the write
type ReconcileResult struct {
	reconcile.Result
	Applied bool         `json:"applied"`
	Object  *blob.Object `json:"object,omitempty"`
}

// Reconcile merges, filters and orders the sources and optionally writes
// the result as the new collection
func (s *MessageService) Reconcile(ctx context.Context, req ReconcileRequest) (ReconcileResult, error) {
	ctx, span := s.tracer.Start(ctx, "messages.reconcile")
	defer span.End()

	srcs := make([]reconcile.Source, 0, len(req.Sources)+1)
	if req.IncludeLive {
		live, err := s.read(ctx)
		if err != nil {
			span.RecordError(err)
			return ReconcileResult{}, err
		}
		srcs = append(srcs, reconcile.Source{Name: "live", Live: true, Messages: live})
	}
	srcs = append(srcs, req.Sources...)

	rules := s.options.Rules
	if req.Rules != nil {
		preserve := rules.PreserveRecent
		rules = *req.Rules
		rules.PreserveRecent = preserve
	}

	result := reconcile.New(reconcile.Config{Rules: rules, Now: s.now}, logger.FromCtx(ctx, s.log)).Run(srcs)

	s.options.Metrics.ReconcileRuns.Add(ctx, 1)
	s.options.Metrics.Rejected.Add(ctx, int64(len(result.Report.Rejected)))
	s.options.Metrics.Duplicates.Add(ctx, int64(len(result.Report.Duplicates)))
	span.SetAttributes(
		attribute.Int("reconcile.inputs", result.Report.Inputs),
		attribute.Int("reconcile.output", result.Report.Output),
	)

	out := ReconcileResult{Result: result}
	if !req.Apply {
		return out, nil
	}
	obj, err := s.Replace(ctx, result.Messages, "reconcile")
	if err != nil {
		return ReconcileResult{}, err
	}
	out.Applied = true
	out.Object = &obj
	return out, nil
}
