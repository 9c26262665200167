package models

import "time"

// RatingStatus captures the lifecycle states of a rating.
type RatingStatus string

const (
	RatingStatusCreated RatingStatus = "CREATED"
	RatingStatusPending RatingStatus = "PENDING"
	RatingStatusClosed  RatingStatus = "CLOSED"
)

// Rating is a scoring template authored for one or more respondents.
type Rating struct {
	ID        string       `db:"id" json:"id"`
	Title     string       `db:"title" json:"title"`
	Type      string       `db:"type" json:"type"`
	AuthorID  string       `db:"author_id" json:"author_id"`
	Deadline  *time.Time   `db:"deadline" json:"deadline,omitempty"`
	Status    RatingStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`

	Items []RatingItem `json:"items,omitempty"`
}

// RatingItem describes a single scoring criterion.
type RatingItem struct {
	ID               string    `db:"id" json:"id"`
	RatingID         string    `db:"rating_id" json:"rating_id"`
	Name             string    `db:"name" json:"name"`
	MaxScore         float64   `db:"max_score" json:"max_score"`
	Comment          string    `db:"comment" json:"comment"`
	RequiresDocument bool      `db:"requires_document" json:"requires_document"`
	Position         int       `db:"position" json:"position"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// RatingFilter constrains listing queries.
type RatingFilter struct {
	AuthorID string
	Status   []RatingStatus
	Type     string
	Limit    int
	Offset   int
}
