package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/homework-tracker-api/internal/deadline"
	"github.com/noah-isme/homework-tracker-api/internal/dto"
	"github.com/noah-isme/homework-tracker-api/internal/models"
	"github.com/noah-isme/homework-tracker-api/internal/observability"
	"github.com/noah-isme/homework-tracker-api/internal/repository"
)

var (
	// ErrHomeworkNotFound indicates the requested homework does not exist for the owner.
	ErrHomeworkNotFound = errors.New("homework not found")
	// ErrInvalidDeadline indicates the deadline could not be parsed or conflicts with clear_deadline.
	ErrInvalidDeadline = errors.New("invalid deadline")
	// ErrEmptyTitle indicates the title contained nothing but markup.
	ErrEmptyTitle = errors.New("title is empty after sanitization")
	// ErrInvalidStatus indicates an unknown urgency status filter.
	ErrInvalidStatus = errors.New("invalid status filter")
)

// HomeworkServiceConfig tunes caching, attachments and the clock.
type HomeworkServiceConfig struct {
	StatsCacheTTL   time.Duration
	MaxAttachmentMB int
	Clock           deadline.Clock
}

// HomeworkService exposes homework use cases.
type HomeworkService interface {
	List(ctx context.Context, ownerID uint, query dto.HomeworkListQuery) ([]dto.HomeworkResponse, error)
	Get(ctx context.Context, ownerID uint, id string) (dto.HomeworkResponse, error)
	Create(ctx context.Context, ownerID uint, payload dto.HomeworkCreateRequest) (dto.HomeworkResponse, error)
	Update(ctx context.Context, ownerID uint, id string, payload dto.HomeworkUpdateRequest) (dto.HomeworkResponse, error)
	SetCompleted(ctx context.Context, ownerID uint, id string, completed bool) (dto.HomeworkResponse, error)
	Delete(ctx context.Context, ownerID uint, id string) error
	Stats(ctx context.Context, ownerID uint) (dto.HomeworkStatsResponse, bool, error)
	Subjects(ctx context.Context, ownerID uint) ([]string, error)
	AttachFile(ctx context.Context, ownerID uint, id string, file *multipart.FileHeader) (dto.HomeworkResponse, error)
}

type homeworkService struct {
	repo       repository.HomeworkRepository
	validator  *validator.Validate
	cache      *redis.Client
	cacheTTL   time.Duration
	storage    FileStorage
	maxSize    int64
	classifier *deadline.Classifier
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
	tracer     trace.Tracer
}

// NewHomeworkService builds the homework service. cache and storage may be nil.
func NewHomeworkService(repo repository.HomeworkRepository, validate *validator.Validate, cache *redis.Client, storage FileStorage, cfg HomeworkServiceConfig, logger zerolog.Logger) HomeworkService {
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = time.Minute
	}
	if cfg.MaxAttachmentMB <= 0 {
		cfg.MaxAttachmentMB = 10
	}

	return &homeworkService{
		repo:       repo,
		validator:  validate,
		cache:      cache,
		cacheTTL:   cfg.StatsCacheTTL,
		storage:    storage,
		maxSize:    int64(cfg.MaxAttachmentMB) * 1024 * 1024,
		classifier: deadline.NewClassifier(cfg.Clock),
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "homework_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/homework-tracker-api/internal/service/homework"),
	}
}

func (s *homeworkService) List(ctx context.Context, ownerID uint, query dto.HomeworkListQuery) ([]dto.HomeworkResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	var wanted deadline.Status
	if query.Status != "" {
		status, ok := deadline.ParseStatus(query.Status)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, query.Status)
		}
		wanted = status
	}

	ctx, span := s.tracer.Start(ctx, "homework.list", trace.WithAttributes(attribute.Int("homework.owner_id", int(ownerID))))
	defer span.End()

	items, err := s.repo.List(ctx, repository.HomeworkFilter{
		OwnerID:   ownerID,
		Subject:   query.Subject,
		Priority:  query.Priority,
		Search:    query.Search,
		Completed: query.Completed,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	all := dto.NewHomeworkResponseSlice(deadline.SortByDeadline(items), s.classifier.Now())

	responses := make([]dto.HomeworkResponse, 0, len(all))
	for _, item := range all {
		observability.HomeworkClassifications().WithLabelValues(string(item.Urgency)).Inc()
		if wanted != "" && item.Urgency != wanted {
			continue
		}
		responses = append(responses, item)
	}

	span.SetAttributes(attribute.Int("homework.count", len(responses)))
	return responses, nil
}

func (s *homeworkService) Get(ctx context.Context, ownerID uint, id string) (dto.HomeworkResponse, error) {
	homework, err := s.find(ctx, ownerID, id)
	if err != nil {
		return dto.HomeworkResponse{}, err
	}

	return s.respond(homework), nil
}

func (s *homeworkService) Create(ctx context.Context, ownerID uint, payload dto.HomeworkCreateRequest) (dto.HomeworkResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.HomeworkResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "homework.create", trace.WithAttributes(attribute.Int("homework.owner_id", int(ownerID))))
	defer span.End()

	title := s.clean(payload.Title)
	if title == "" {
		return dto.HomeworkResponse{}, ErrEmptyTitle
	}

	due, err := parseDeadline(payload.Deadline)
	if err != nil {
		return dto.HomeworkResponse{}, err
	}

	homework := models.Homework{
		OwnerID:     ownerID,
		Title:       title,
		Subject:     s.clean(payload.Subject),
		Description: s.clean(payload.Description),
		Deadline:    due,
		Priority:    payload.Priority,
	}
	if payload.Extras != nil {
		homework.Extras = datatypes.JSONMap(payload.Extras)
	}

	if err := s.repo.Create(ctx, &homework); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.HomeworkResponse{}, err
	}

	s.invalidateStats(ctx, ownerID)
	s.logger.Info().Str("homework_id", homework.ID).Uint("owner_id", ownerID).Msg("homework created")

	return s.respond(homework), nil
}

func (s *homeworkService) Update(ctx context.Context, ownerID uint, id string, payload dto.HomeworkUpdateRequest) (dto.HomeworkResponse, error) {
	if payload.ClearDeadline && payload.Deadline != nil {
		return dto.HomeworkResponse{}, fmt.Errorf("%w: deadline and clear_deadline are mutually exclusive", ErrInvalidDeadline)
	}
	// A blank deadline clears it, same as clear_deadline.
	if payload.Deadline != nil && strings.TrimSpace(*payload.Deadline) == "" {
		payload.Deadline = nil
		payload.ClearDeadline = true
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.HomeworkResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "homework.update", trace.WithAttributes(attribute.String("homework.id", id)))
	defer span.End()

	homework, err := s.find(ctx, ownerID, id)
	if err != nil {
		return dto.HomeworkResponse{}, err
	}

	if payload.Title != nil {
		title := s.clean(*payload.Title)
		if title == "" {
			return dto.HomeworkResponse{}, ErrEmptyTitle
		}
		homework.Title = title
	}
	if payload.Subject != nil {
		homework.Subject = s.clean(*payload.Subject)
	}
	if payload.Description != nil {
		homework.Description = s.clean(*payload.Description)
	}
	if payload.Priority != nil {
		homework.Priority = *payload.Priority
	}
	if payload.ClearDeadline {
		homework.Deadline = nil
	}
	if payload.Deadline != nil {
		due, err := parseDeadline(payload.Deadline)
		if err != nil {
			return dto.HomeworkResponse{}, err
		}
		homework.Deadline = due
	}
	if payload.Completed != nil && homework.Completed != *payload.Completed {
		s.markCompleted(&homework, *payload.Completed)
	}
	if payload.Extras != nil {
		homework.Extras = datatypes.JSONMap(payload.Extras)
	}

	if err := s.repo.Update(ctx, &homework); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.HomeworkResponse{}, err
	}

	s.invalidateStats(ctx, ownerID)
	s.logger.Info().Str("homework_id", homework.ID).Msg("homework updated")

	return s.respond(homework), nil
}

func (s *homeworkService) SetCompleted(ctx context.Context, ownerID uint, id string, completed bool) (dto.HomeworkResponse, error) {
	ctx, span := s.tracer.Start(ctx, "homework.set_completed", trace.WithAttributes(
		attribute.String("homework.id", id),
		attribute.Bool("homework.completed", completed),
	))
	defer span.End()

	homework, err := s.find(ctx, ownerID, id)
	if err != nil {
		return dto.HomeworkResponse{}, err
	}

	if homework.Completed != completed {
		s.markCompleted(&homework, completed)
		if err := s.repo.Update(ctx, &homework); err != nil {
			span.RecordError(err)
			return dto.HomeworkResponse{}, err
		}
		s.invalidateStats(ctx, ownerID)
		s.logger.Info().Str("homework_id", homework.ID).Bool("completed", completed).Msg("homework completion changed")
	}

	return s.respond(homework), nil
}

func (s *homeworkService) Delete(ctx context.Context, ownerID uint, id string) error {
	ctx, span := s.tracer.Start(ctx, "homework.delete", trace.WithAttributes(attribute.String("homework.id", id)))
	defer span.End()

	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrHomeworkNotFound
		}
		span.RecordError(err)
		return err
	}

	s.invalidateStats(ctx, ownerID)
	s.logger.Info().Str("homework_id", id).Msg("homework deleted")
	return nil
}

func (s *homeworkService) Stats(ctx context.Context, ownerID uint) (dto.HomeworkStatsResponse, bool, error) {
	cacheKey := statsCacheKey(ownerID)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.HomeworkStatsResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.HomeworkStatsRequests().WithLabelValues("hit").Inc()
				s.logger.Debug().Uint("owner_id", ownerID).Msg("stats cache hit")
				return response, true, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read stats cache")
		}
	}

	items, err := s.repo.List(ctx, repository.HomeworkFilter{OwnerID: ownerID})
	if err != nil {
		observability.HomeworkStatsRequests().WithLabelValues("error").Inc()
		return dto.HomeworkStatsResponse{}, false, err
	}

	response := buildStats(items, s.classifier.Now())

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store stats cache")
			}
		}
	}

	observability.HomeworkStatsRequests().WithLabelValues("miss").Inc()
	return response, false, nil
}

func (s *homeworkService) Subjects(ctx context.Context, ownerID uint) ([]string, error) {
	subjects, err := s.repo.Subjects(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if subjects == nil {
		subjects = []string{}
	}
	return subjects, nil
}

func (s *homeworkService) find(ctx context.Context, ownerID uint, id string) (models.Homework, error) {
	homework, err := s.repo.GetByID(ctx, ownerID, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Homework{}, ErrHomeworkNotFound
		}
		return models.Homework{}, err
	}
	return homework, nil
}

func (s *homeworkService) respond(homework models.Homework) dto.HomeworkResponse {
	return dto.NewHomeworkResponse(homework, s.classifier.Annotate(homework.Deadline))
}

func (s *homeworkService) markCompleted(homework *models.Homework, completed bool) {
	homework.Completed = completed
	if completed {
		now := s.classifier.Now().UTC()
		homework.CompletedAt = &now
		return
	}
	homework.CompletedAt = nil
}

func (s *homeworkService) clean(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
}

func (s *homeworkService) invalidateStats(ctx context.Context, ownerID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statsCacheKey(ownerID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("owner_id", ownerID).Msg("failed to invalidate stats cache")
	}
}

func statsCacheKey(ownerID uint) string {
	return fmt.Sprintf("homework:stats:%d", ownerID)
}

func parseDeadline(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}

	parsed, err := time.Parse(dto.DeadlineLayout, strings.TrimSpace(*value))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeadline, err)
	}

	utc := parsed.UTC()
	return &utc, nil
}

func buildStats(items []models.Homework, now time.Time) dto.HomeworkStatsResponse {
	stats := dto.HomeworkStatsResponse{GeneratedAt: now.UTC()}

	for _, item := range items {
		stats.Total++
		if item.Completed {
			stats.Completed++
			continue
		}

		stats.Pending++
		switch deadline.Classify(item.Deadline, now) {
		case deadline.StatusOverdue:
			stats.Overdue++
		case deadline.StatusDueSoon:
			stats.DueSoon++
		case deadline.StatusNormal:
			stats.Normal++
		default:
			stats.NoDeadline++
		}
	}

	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total) * 100
	}

	return stats
}
