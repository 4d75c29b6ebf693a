package dto

import (
	"time"

	"github.com/noah-isme/homework-tracker-api/internal/deadline"
	"github.com/noah-isme/homework-tracker-api/internal/models"
)

// DeadlineLayout is the wire format accepted for deadlines.
const DeadlineLayout = time.RFC3339

// HomeworkCreateRequest describes the payload for creating homework.
type HomeworkCreateRequest struct {
	Title       string                 `json:"title" validate:"required,min=1,max=255"`
	Subject     string                 `json:"subject" validate:"omitempty,max=128"`
	Description string                 `json:"description" validate:"omitempty,max=5000"`
	Deadline    *string                `json:"deadline" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Priority    string                 `json:"priority" validate:"omitempty,oneof=low medium high"`
	Extras      map[string]interface{} `json:"extras"`
}

// HomeworkUpdateRequest describes a partial update. ClearDeadline removes the deadline.
type HomeworkUpdateRequest struct {
	Title         *string                `json:"title" validate:"omitempty,min=1,max=255"`
	Subject       *string                `json:"subject" validate:"omitempty,max=128"`
	Description   *string                `json:"description" validate:"omitempty,max=5000"`
	Deadline      *string                `json:"deadline" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ClearDeadline bool                   `json:"clear_deadline"`
	Priority      *string                `json:"priority" validate:"omitempty,oneof=low medium high"`
	Completed     *bool                  `json:"completed"`
	Extras        map[string]interface{} `json:"extras"`
}

// HomeworkListQuery captures list filters. Status filters on the derived urgency
// and is resolved with deadline.ParseStatus.
type HomeworkListQuery struct {
	Subject   string `validate:"omitempty,max=128"`
	Priority  string `validate:"omitempty,oneof=low medium high"`
	Status    string
	Search    string `validate:"omitempty,max=128"`
	Completed *bool
}

// HomeworkResponse is the serialized homework with its urgency as of the request.
type HomeworkResponse struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	Subject       string                 `json:"subject"`
	Description   string                 `json:"description"`
	Deadline      *time.Time             `json:"deadline,omitempty"`
	Priority      string                 `json:"priority"`
	Completed     bool                   `json:"completed"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	AttachmentURL string                 `json:"attachment_url,omitempty"`
	Extras        map[string]interface{} `json:"extras,omitempty"`
	Urgency       deadline.Status        `json:"urgency"`
	Variant       deadline.Variant       `json:"variant"`
	DeadlineLabel string                 `json:"deadline_label,omitempty"`
	DaysLeft      *int                   `json:"days_left,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// NewHomeworkResponse converts a model and its annotation into a DTO.
func NewHomeworkResponse(model models.Homework, annotation deadline.Annotation) HomeworkResponse {
	var extras map[string]interface{}
	if len(model.Extras) > 0 {
		extras = map[string]interface{}(model.Extras)
	}

	return HomeworkResponse{
		ID:            model.ID,
		Title:         model.Title,
		Subject:       model.Subject,
		Description:   model.Description,
		Deadline:      model.Deadline,
		Priority:      model.Priority,
		Completed:     model.Completed,
		CompletedAt:   model.CompletedAt,
		AttachmentURL: model.AttachmentURL,
		Extras:        extras,
		Urgency:       annotation.Status,
		Variant:       annotation.Variant,
		DeadlineLabel: annotation.Label,
		DaysLeft:      annotation.DaysLeft,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}

// NewHomeworkResponseSlice annotates every item against the same instant.
func NewHomeworkResponseSlice(items []models.Homework, now time.Time) []HomeworkResponse {
	responses := make([]HomeworkResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewHomeworkResponse(item, deadline.AnnotateAt(item.Deadline, now)))
	}
	return responses
}

// HomeworkStatsResponse summarises an owner's homework.
type HomeworkStatsResponse struct {
	Total          int       `json:"total"`
	Completed      int       `json:"completed"`
	Pending        int       `json:"pending"`
	Overdue        int       `json:"overdue"`
	DueSoon        int       `json:"due_soon"`
	Normal         int       `json:"normal"`
	NoDeadline     int       `json:"no_deadline"`
	CompletionRate float64   `json:"completion_rate"`
	GeneratedAt    time.Time `json:"generated_at"`
}
