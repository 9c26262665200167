package dto

import (
	"time"

	"github.com/noah-isme/rating-flow-api/internal/models"
)

// RatingItemPayload describes one scoring criterion in create/update payloads.
type RatingItemPayload struct {
	Name             string  `json:"name" validate:"required"`
	MaxScore         float64 `json:"max_score" validate:"required,gt=0"`
	Comment          string  `json:"comment"`
	RequiresDocument bool    `json:"requires_document"`
}

// ReviewerAssignmentPayload maps department/unit IDs to reviewer user IDs.
type ReviewerAssignmentPayload struct {
	DepartmentReviewers map[string]string `json:"department_reviewers"`
	UnitReviewers       map[string]string `json:"unit_reviewers"`
}

// CreateRatingRequest captures POST /ratings payload.
type CreateRatingRequest struct {
	Title         string                    `json:"title" validate:"required"`
	Type          string                    `json:"type" validate:"required"`
	Deadline      *time.Time                `json:"deadline,omitempty"`
	Items         []RatingItemPayload       `json:"items" validate:"required,min=1,dive"`
	RespondentIDs []string                  `json:"respondent_ids" validate:"required,min=1"`
	Reviewers     ReviewerAssignmentPayload `json:"reviewers"`
}

// UpdateRatingRequest mutates a rating while it is still editable.
type UpdateRatingRequest struct {
	Title     string                     `json:"title" validate:"required"`
	Type      string                     `json:"type" validate:"required"`
	Deadline  *time.Time                 `json:"deadline,omitempty"`
	Items     []RatingItemPayload        `json:"items" validate:"required,min=1,dive"`
	Reviewers *ReviewerAssignmentPayload `json:"reviewers,omitempty"`
}

// RatingQuery filters rating listings.
type RatingQuery struct {
	Status []models.RatingStatus
	Type   string
	Limit  int
	Offset int
}
