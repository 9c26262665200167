package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rating-flow-api/internal/models"
)

// RatingRepository handles rating and rating item persistence.
type RatingRepository struct {
	db *sqlx.DB
}

// NewRatingRepository creates a new rating repository.
func NewRatingRepository(db *sqlx.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

// Create stores the rating, its items and its participants in one transaction.
func (r *RatingRepository) Create(ctx context.Context, rating *models.Rating, participants []models.Participant) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if rating.ID == "" {
		rating.ID = uuid.NewString()
	}
	rating.CreatedAt = now
	rating.UpdatedAt = now

	const ratingQuery = `INSERT INTO ratings (id, title, type, author_id, deadline, status, created_at, updated_at)
        VALUES (:id, :title, :type, :author_id, :deadline, :status, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, ratingQuery, rating); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create rating: %w", err)
	}

	if err := insertItems(ctx, tx, rating.ID, rating.Items, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	const participantQuery = `INSERT INTO participants (id, rating_id, respondent_id, status, department_reviewer_id, unit_reviewer_id, cycle, created_at, updated_at)
        VALUES (:id, :rating_id, :respondent_id, :status, :department_reviewer_id, :unit_reviewer_id, :cycle, :created_at, :updated_at)`
	for i := range participants {
		if participants[i].ID == "" {
			participants[i].ID = uuid.NewString()
		}
		participants[i].RatingID = rating.ID
		participants[i].CreatedAt = now
		participants[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, participantQuery, participants[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("create participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rating: %w", err)
	}
	return nil
}

// GetByID returns a rating with its items.
func (r *RatingRepository) GetByID(ctx context.Context, id string) (*models.Rating, error) {
	const query = `SELECT id, title, type, author_id, deadline, status, created_at, updated_at FROM ratings WHERE id = $1 LIMIT 1`
	var rating models.Rating
	if err := r.db.GetContext(ctx, &rating, query, id); err != nil {
		return nil, err
	}
	const itemsQuery = `SELECT id, rating_id, name, max_score, comment, requires_document, position, created_at FROM rating_items WHERE rating_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &rating.Items, itemsQuery, id); err != nil {
		return nil, fmt.Errorf("load rating items: %w", err)
	}
	return &rating, nil
}

// List returns ratings matching the filter.
func (r *RatingRepository) List(ctx context.Context, filter models.RatingFilter) ([]models.Rating, error) {
	query := `SELECT id, title, type, author_id, deadline, status, created_at, updated_at FROM ratings WHERE 1=1`
	var args []interface{}
	if filter.AuthorID != "" {
		query += fmt.Sprintf(" AND author_id = $%d", len(args)+1)
		args = append(args, filter.AuthorID)
	}
	if filter.Type != "" {
		query += fmt.Sprintf(" AND type = $%d", len(args)+1)
		args = append(args, filter.Type)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, status)
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}
	var ratings []models.Rating
	if err := r.db.SelectContext(ctx, &ratings, query, args...); err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	return ratings, nil
}

// Update replaces the mutable definition of a rating, including its items.
// Callers enforce that the rating is still editable.
func (r *RatingRepository) Update(ctx context.Context, rating *models.Rating) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	rating.UpdatedAt = now

	const query = `UPDATE ratings SET title = :title, type = :type, deadline = :deadline, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, rating); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("update rating: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rating_items WHERE rating_id = $1`, rating.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear rating items: %w", err)
	}
	if err := insertItems(ctx, tx, rating.ID, rating.Items, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rating update: %w", err)
	}
	return nil
}

// UpdateReviewers rewrites the reviewer columns for all participants of a rating.
func (r *RatingRepository) UpdateReviewers(ctx context.Context, ratingID string, participants []models.Participant) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const query = `UPDATE participants SET department_reviewer_id = :department_reviewer_id, unit_reviewer_id = :unit_reviewer_id, updated_at = :updated_at WHERE id = :id`
	now := time.Now().UTC()
	for i := range participants {
		participants[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, participants[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("update participant reviewers: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reviewer update: %w", err)
	}
	return nil
}

// TransitionStatus conditionally moves a rating between states. Returns false
// when the rating was not in the expected source state.
func (r *RatingRepository) TransitionStatus(ctx context.Context, id string, from, to models.RatingStatus) (bool, error) {
	const query = `UPDATE ratings SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition rating status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rating status: %w", err)
	}
	return affected > 0, nil
}

// ForceClose closes the rating whatever state it is in. The status guard only
// skips already-closed rows, so the author override cannot lose a race with a
// concurrent complete.
func (r *RatingRepository) ForceClose(ctx context.Context, id string) error {
	const query = `UPDATE ratings SET status = $2, updated_at = $3 WHERE id = $1 AND status <> $2`
	if _, err := r.db.ExecContext(ctx, query, id, models.RatingStatusClosed, time.Now().UTC()); err != nil {
		return fmt.Errorf("force close rating: %w", err)
	}
	return nil
}

// CloseIfFullyApproved closes the rating only when every participant is
// approved. The NOT EXISTS guard runs inside one statement, so two concurrent
// last-approval events cannot both observe a half-done snapshot.
func (r *RatingRepository) CloseIfFullyApproved(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE ratings SET status = $2, updated_at = $3
        WHERE id = $1 AND status = $4
        AND NOT EXISTS (SELECT 1 FROM participants p WHERE p.rating_id = $1 AND p.status <> $5)`
	result, err := r.db.ExecContext(ctx, query, id, models.RatingStatusClosed, time.Now().UTC(), models.RatingStatusPending, models.ParticipantStatusApproved)
	if err != nil {
		return false, fmt.Errorf("close rating: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close rating: %w", err)
	}
	return affected > 0, nil
}

// IsFullyApproved reports whether every participant of the rating is approved.
func (r *RatingRepository) IsFullyApproved(ctx context.Context, id string) (bool, error) {
	const query = `SELECT COUNT(*) FROM participants WHERE rating_id = $1 AND status <> $2`
	var remaining int
	if err := r.db.GetContext(ctx, &remaining, query, id, models.ParticipantStatusApproved); err != nil {
		return false, fmt.Errorf("count unapproved participants: %w", err)
	}
	return remaining == 0, nil
}

// Delete removes the rating and everything owned by it.
func (r *RatingRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	statements := []string{
		`DELETE FROM approvals WHERE participant_id IN (SELECT id FROM participants WHERE rating_id = $1)`,
		`DELETE FROM participant_documents WHERE participant_id IN (SELECT id FROM participants WHERE rating_id = $1)`,
		`DELETE FROM participant_scores WHERE participant_id IN (SELECT id FROM participants WHERE rating_id = $1)`,
		`DELETE FROM participants WHERE rating_id = $1`,
		`DELETE FROM rating_items WHERE rating_id = $1`,
		`DELETE FROM ratings WHERE id = $1`,
	}
	for _, statement := range statements {
		if _, err := tx.ExecContext(ctx, statement, id); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("delete rating: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rating delete: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, tx *sqlx.Tx, ratingID string, items []models.RatingItem, now time.Time) error {
	const query = `INSERT INTO rating_items (id, rating_id, name, max_score, comment, requires_document, position, created_at)
        VALUES (:id, :rating_id, :name, :max_score, :comment, :requires_document, :position, :created_at)`
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		items[i].RatingID = ratingID
		items[i].Position = i
		items[i].CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, items[i]); err != nil {
			return fmt.Errorf("insert rating item: %w", err)
		}
	}
	return nil
}
