package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/homework-tracker-api/internal/dto"
	"github.com/noah-isme/homework-tracker-api/internal/observability"
)

var (
	// ErrAttachmentMissing indicates no file was sent.
	ErrAttachmentMissing = errors.New("file is required")
	// ErrAttachmentTooLarge indicates the payload exceeded the configured limit.
	ErrAttachmentTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrAttachmentTypeNotAllowed indicates the detected MIME type is not permitted.
	ErrAttachmentTypeNotAllowed = errors.New("file type not allowed")
	// ErrAttachmentsDisabled indicates no storage backend is configured.
	ErrAttachmentsDisabled = errors.New("attachments are not configured")
)

var allowedAttachmentTypes = map[string]struct{}{
	"image/jpeg":      {},
	"image/png":       {},
	"image/webp":      {},
	"image/heic":      {},
	"application/pdf": {},
	"text/plain":      {},
}

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

func (s *homeworkService) AttachFile(ctx context.Context, ownerID uint, id string, file *multipart.FileHeader) (dto.HomeworkResponse, error) {
	ctx, span := s.tracer.Start(ctx, "homework.attach", trace.WithAttributes(
		attribute.String("homework.id", id),
		attribute.Int64("upload.max_bytes", s.maxSize),
	))
	defer span.End()

	if s.storage == nil {
		return dto.HomeworkResponse{}, ErrAttachmentsDisabled
	}
	if file == nil {
		return dto.HomeworkResponse{}, ErrAttachmentMissing
	}

	homework, err := s.find(ctx, ownerID, id)
	if err != nil {
		return dto.HomeworkResponse{}, err
	}

	if file.Size > s.maxSize {
		return dto.HomeworkResponse{}, s.reject(span, "size", ErrAttachmentTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return dto.HomeworkResponse{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		return dto.HomeworkResponse{}, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(buf.Len()) > s.maxSize {
		return dto.HomeworkResponse{}, s.reject(span, "size", ErrAttachmentTooLarge)
	}

	fileType := normalizeMime(mimetype.Detect(buf.Bytes()).String())
	span.SetAttributes(attribute.String("upload.detected_mime", fileType))
	if _, ok := allowedAttachmentTypes[fileType]; !ok {
		return dto.HomeworkResponse{}, s.reject(span, "type", ErrAttachmentTypeNotAllowed)
	}

	url, err := s.storage.Upload(ctx, sanitizeFileName(file.Filename, s.classifier.Now()), bytes.NewReader(buf.Bytes()))
	if err != nil {
		observability.AttachmentRejected().WithLabelValues("storage").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage failed")
		return dto.HomeworkResponse{}, fmt.Errorf("failed to upload file: %w", err)
	}

	homework.AttachmentURL = url
	if err := s.repo.Update(ctx, &homework); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.HomeworkResponse{}, err
	}

	span.SetStatus(codes.Ok, "stored")
	s.logger.Info().Str("homework_id", homework.ID).Str("mime", fileType).Msg("attachment stored")

	return s.respond(homework), nil
}

func (s *homeworkService) reject(span trace.Span, reason string, err error) error {
	observability.AttachmentRejected().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	return err
}

func normalizeMime(value string) string {
	if idx := strings.Index(value, ";"); idx >= 0 {
		value = value[:idx]
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func sanitizeFileName(name string, now time.Time) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("homework-%d", now.Unix())
	}
	return base + strings.ToLower(filepath.Ext(name))
}
