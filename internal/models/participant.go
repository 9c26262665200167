package models

import "time"

// ParticipantStatus captures per-respondent fill/approval progress.
type ParticipantStatus string

const (
	ParticipantStatusPending  ParticipantStatus = "PENDING"
	ParticipantStatusFilled   ParticipantStatus = "FILLED"
	ParticipantStatusRevision ParticipantStatus = "REVISION"
	ParticipantStatusApproved ParticipantStatus = "APPROVED"
)

// Participant binds one respondent to one rating. Cycle counts submissions:
// it starts at 0 and increments on every successful fill, so approvals can be
// attributed to the submission they reviewed.
type Participant struct {
	ID                   string            `db:"id" json:"id"`
	RatingID             string            `db:"rating_id" json:"rating_id"`
	RespondentID         string            `db:"respondent_id" json:"respondent_id"`
	Status               ParticipantStatus `db:"status" json:"status"`
	DepartmentReviewerID *string           `db:"department_reviewer_id" json:"department_reviewer_id,omitempty"`
	UnitReviewerID       *string           `db:"unit_reviewer_id" json:"unit_reviewer_id,omitempty"`
	Cycle                int               `db:"cycle" json:"cycle"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`

	Scores    []ItemScore    `json:"scores,omitempty"`
	Documents []ItemDocument `json:"documents,omitempty"`
}

// ItemScore stores one respondent's score for one rating item.
type ItemScore struct {
	ID            string    `db:"id" json:"id"`
	ParticipantID string    `db:"participant_id" json:"participant_id"`
	ItemID        string    `db:"item_id" json:"item_id"`
	Score         float64   `db:"score" json:"score"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ItemDocument references an uploaded supporting document by opaque URL.
type ItemDocument struct {
	ID            string    `db:"id" json:"id"`
	ParticipantID string    `db:"participant_id" json:"participant_id"`
	ItemID        string    `db:"item_id" json:"item_id"`
	URL           string    `db:"url" json:"url"`
	UploadedAt    time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// ParticipantFilter constrains participant listing queries.
type ParticipantFilter struct {
	RatingID     string
	RespondentID string
	Status       []ParticipantStatus
}
