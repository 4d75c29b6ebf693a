package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Homework priority levels.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Homework is a single piece of work a student has to hand in.
type Homework struct {
	ID            string            `gorm:"primaryKey;size:36" json:"id"`
	OwnerID       uint              `gorm:"index;not null" json:"owner_id"`
	Title         string            `gorm:"size:255;not null" json:"title"`
	Subject       string            `gorm:"size:128;index" json:"subject"`
	Description   string            `gorm:"type:text" json:"description"`
	Deadline      *time.Time        `gorm:"index" json:"deadline,omitempty"`
	Priority      string            `gorm:"size:16;not null;default:medium" json:"priority"`
	Completed     bool              `gorm:"not null;default:false;index" json:"completed"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	AttachmentURL string            `gorm:"size:512" json:"attachment_url"`
	Extras        datatypes.JSONMap `gorm:"type:json" json:"extras"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// BeforeCreate assigns an identifier and default priority.
func (h *Homework) BeforeCreate(_ *gorm.DB) error {
	if strings.TrimSpace(h.ID) == "" {
		h.ID = uuid.NewString()
	}
	if h.Priority == "" {
		h.Priority = PriorityMedium
	}
	return nil
}

// DeadlineAt exposes the optional deadline for ordering and classification.
func (h Homework) DeadlineAt() *time.Time {
	return h.Deadline
}
