package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rating-flow-api/internal/models"
)

// ApprovalRepository handles per-level decision records.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `id, participant_id, level, status, comments, reviewer_id, cycle, decided_at, created_at, updated_at`

// OpenPending creates or resets the level's record to PENDING for the given
// submission cycle. Rows are unique per (participant, level, cycle); reopening
// an existing row wipes its comments and decision.
func (r *ApprovalRepository) OpenPending(ctx context.Context, participantID string, level models.ReviewLevel, cycle int) error {
	now := time.Now().UTC()
	const query = `INSERT INTO approvals (id, participant_id, level, status, comments, reviewer_id, cycle, decided_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, '{}', NULL, $5, NULL, $6, $6)
        ON CONFLICT (participant_id, level, cycle)
        DO UPDATE SET status = $4, comments = '{}', reviewer_id = NULL, decided_at = NULL, updated_at = $6`
	if _, err := r.db.ExecContext(ctx, query, uuid.NewString(), participantID, level, models.ApprovalStatusPending, cycle, now); err != nil {
		return fmt.Errorf("open pending approval: %w", err)
	}
	return nil
}

// Decide records the reviewer's decision on the pending record for the cycle.
// Returns false when no pending record exists, meaning it is not that level's
// turn.
func (r *ApprovalRepository) Decide(ctx context.Context, participantID string, level models.ReviewLevel, cycle int, status models.ApprovalStatus, comments models.CommentMap, reviewerID string) (bool, error) {
	now := time.Now().UTC()
	const query = `UPDATE approvals SET status = $4, comments = $5, reviewer_id = $6, decided_at = $7, updated_at = $7
        WHERE participant_id = $1 AND level = $2 AND cycle = $3 AND status = $8`
	result, err := r.db.ExecContext(ctx, query, participantID, level, cycle, status, comments, reviewerID, now, models.ApprovalStatusPending)
	if err != nil {
		return false, fmt.Errorf("decide approval: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decide approval: %w", err)
	}
	return affected > 0, nil
}

// ListByParticipant returns every decision recorded for the participant,
// oldest first.
func (r *ApprovalRepository) ListByParticipant(ctx context.Context, participantID string) ([]models.Approval, error) {
	query := fmt.Sprintf(`SELECT %s FROM approvals WHERE participant_id = $1 ORDER BY created_at ASC`, approvalColumns)
	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query, participantID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}

// ListApprovedLevels returns the levels that currently hold an APPROVED
// decision for the participant. Revisions at a later level leave earlier
// approvals in place, so the chain resumes where it stopped.
func (r *ApprovalRepository) ListApprovedLevels(ctx context.Context, participantID string) ([]models.ReviewLevel, error) {
	const query = `SELECT level FROM approvals WHERE participant_id = $1 AND status = $2`
	var levels []models.ReviewLevel
	if err := r.db.SelectContext(ctx, &levels, query, participantID, models.ApprovalStatusApproved); err != nil {
		return nil, fmt.Errorf("list approved levels: %w", err)
	}
	return levels, nil
}

// ClosePending abandons pending records left open at stale cycles so a
// revised submission never shows two open gates at once.
func (r *ApprovalRepository) ClosePending(ctx context.Context, participantID string, before int) error {
	const query = `DELETE FROM approvals WHERE participant_id = $1 AND status = $2 AND cycle < $3`
	if _, err := r.db.ExecContext(ctx, query, participantID, models.ApprovalStatusPending, before); err != nil {
		return fmt.Errorf("close stale approvals: %w", err)
	}
	return nil
}

// ListPendingForReviewer returns participants whose currently open review
// level is assigned to the given reviewer. Keyed off the PENDING approval
// record of the participant's current cycle, so a department reviewer never
// sees a submission that already sits with the author.
func (r *ApprovalRepository) ListPendingForReviewer(ctx context.Context, reviewerID string) ([]models.PendingAction, error) {
	const query = `SELECT p.rating_id, p.id AS participant_id,
        CASE a.level
            WHEN $2 THEN $3
            WHEN $4 THEN $5
            ELSE $6
        END AS role
        FROM approvals a
        JOIN participants p ON p.id = a.participant_id
        JOIN ratings r ON r.id = p.rating_id
        WHERE a.status = $7 AND a.cycle = p.cycle AND p.status = $8 AND r.status = $9
        AND ((a.level = $2 AND p.department_reviewer_id = $1)
            OR (a.level = $4 AND p.unit_reviewer_id = $1)
            OR (a.level = $10 AND r.author_id = $1))
        ORDER BY a.created_at ASC`
	var actions []models.PendingAction
	err := r.db.SelectContext(ctx, &actions, query, reviewerID,
		models.LevelDepartment, models.ActionRoleDepartmentReviewer,
		models.LevelUnit, models.ActionRoleUnitReviewer,
		models.ActionRoleAuthor,
		models.ApprovalStatusPending, models.ParticipantStatusFilled, models.RatingStatusPending,
		models.LevelAuthor)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	return actions, nil
}
