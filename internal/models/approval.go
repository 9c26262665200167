package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReviewLevel is one ordered gate a submission must pass.
type ReviewLevel string

const (
	LevelDepartment ReviewLevel = "DEPARTMENT"
	LevelUnit       ReviewLevel = "UNIT"
	LevelAuthor     ReviewLevel = "AUTHOR"
)

// LevelOrder is the fixed review order. The author level is never skippable.
var LevelOrder = []ReviewLevel{LevelDepartment, LevelUnit, LevelAuthor}

// CommentPrecedence ranks reviewer feedback for display: the highest level's
// non-empty comments win when several levels commented in the same cycle.
var CommentPrecedence = []ReviewLevel{LevelAuthor, LevelUnit, LevelDepartment}

// Order returns the position of the level within LevelOrder, or -1.
func (l ReviewLevel) Order() int {
	for i, level := range LevelOrder {
		if level == l {
			return i
		}
	}
	return -1
}

// Valid reports whether the level is a known review level.
func (l ReviewLevel) Valid() bool {
	return l.Order() >= 0
}

// ApprovalStatus captures the decision state at one review level.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRevision ApprovalStatus = "REVISION"
)

// CommentMap maps rating item IDs to reviewer feedback. Sparse: only items
// with feedback appear. Stored as jsonb.
type CommentMap map[string]string

// Value implements driver.Valuer.
func (m CommentMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *CommentMap) Scan(src interface{}) error {
	if src == nil {
		*m = CommentMap{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported comment map type %T", src)
	}
	if len(raw) == 0 {
		*m = CommentMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// HasContent reports whether at least one comment is non-empty.
func (m CommentMap) HasContent() bool {
	for _, comment := range m {
		if comment != "" {
			return true
		}
	}
	return false
}

// Approval is the decision record produced by a reviewer at one level.
type Approval struct {
	ID            string         `db:"id" json:"id"`
	ParticipantID string         `db:"participant_id" json:"participant_id"`
	Level         ReviewLevel    `db:"level" json:"level"`
	Status        ApprovalStatus `db:"status" json:"status"`
	Comments      CommentMap     `db:"comments" json:"comments"`
	ReviewerID    *string        `db:"reviewer_id" json:"reviewer_id,omitempty"`
	Cycle         int            `db:"cycle" json:"cycle"`
	DecidedAt     *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// PendingActionRole distinguishes what kind of action awaits the user.
type PendingActionRole string

const (
	ActionRoleRespondent         PendingActionRole = "RESPONDENT"
	ActionRoleDepartmentReviewer PendingActionRole = "DEPARTMENT_REVIEWER"
	ActionRoleUnitReviewer       PendingActionRole = "UNIT_REVIEWER"
	ActionRoleAuthor             PendingActionRole = "AUTHOR"
)

// PendingAction tells presentation layers what a user still has to do.
type PendingAction struct {
	RatingID      string            `db:"rating_id" json:"rating_id"`
	ParticipantID string            `db:"participant_id" json:"participant_id"`
	Role          PendingActionRole `db:"role" json:"role"`
}
