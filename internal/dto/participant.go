package dto

import "github.com/noah-isme/rating-flow-api/internal/models"

// FillParticipantRequest submits scores and document references per item.
// Keys are rating item IDs.
type FillParticipantRequest struct {
	Scores    map[string]float64  `json:"scores" validate:"required,min=1"`
	Documents map[string][]string `json:"documents"`
}

// DecideRequest records a reviewer decision at one review level.
type DecideRequest struct {
	Level    models.ReviewLevel    `json:"level" validate:"required"`
	Status   models.ApprovalStatus `json:"status" validate:"required,oneof=APPROVED REVISION"`
	Comments models.CommentMap     `json:"comments"`
}

// FeedbackResponse surfaces the winning reviewer comments for a participant.
type FeedbackResponse struct {
	Level    models.ReviewLevel `json:"level"`
	Cycle    int                `json:"cycle"`
	Comments models.CommentMap  `json:"comments"`
}

// ParticipantDetail bundles a participant with its approval history.
type ParticipantDetail struct {
	Participant models.Participant `json:"participant"`
	Approvals   []models.Approval  `json:"approvals"`
}
