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

// ParticipantRepository handles participant rows and their submissions.
type ParticipantRepository struct {
	db *sqlx.DB
}

// NewParticipantRepository creates a new participant repository.
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantColumns = `id, rating_id, respondent_id, status, department_reviewer_id, unit_reviewer_id, cycle, created_at, updated_at`

// GetByID returns a participant with its current scores and documents.
func (r *ParticipantRepository) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	query := fmt.Sprintf(`SELECT %s FROM participants WHERE id = $1 LIMIT 1`, participantColumns)
	var participant models.Participant
	if err := r.db.GetContext(ctx, &participant, query, id); err != nil {
		return nil, err
	}
	if err := r.loadSubmission(ctx, &participant); err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *ParticipantRepository) loadSubmission(ctx context.Context, participant *models.Participant) error {
	const scoresQuery = `SELECT id, participant_id, item_id, score, updated_at FROM participant_scores WHERE participant_id = $1`
	if err := r.db.SelectContext(ctx, &participant.Scores, scoresQuery, participant.ID); err != nil {
		return fmt.Errorf("load scores: %w", err)
	}
	const documentsQuery = `SELECT id, participant_id, item_id, url, uploaded_at FROM participant_documents WHERE participant_id = $1`
	if err := r.db.SelectContext(ctx, &participant.Documents, documentsQuery, participant.ID); err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	return nil
}

// List returns participants matching the filter, without submission detail.
func (r *ParticipantRepository) List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, error) {
	query := fmt.Sprintf(`SELECT %s FROM participants WHERE 1=1`, participantColumns)
	var args []interface{}
	if filter.RatingID != "" {
		query += fmt.Sprintf(" AND rating_id = $%d", len(args)+1)
		args = append(args, filter.RatingID)
	}
	if filter.RespondentID != "" {
		query += fmt.Sprintf(" AND respondent_id = $%d", len(args)+1)
		args = append(args, filter.RespondentID)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, status)
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY created_at ASC"
	var participants []models.Participant
	if err := r.db.SelectContext(ctx, &participants, query, args...); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

// SubmitFill replaces the participant's scores and documents, bumps the cycle
// and moves the row to FILLED, all in one transaction. The expected status
// guard makes the fill all-or-nothing against concurrent reviewer decisions.
func (r *ParticipantRepository) SubmitFill(ctx context.Context, participant *models.Participant, expected []models.ParticipantStatus) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()

	placeholders := make([]string, len(expected))
	args := []interface{}{participant.ID, now}
	for i, status := range expected {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, status)
	}
	query := fmt.Sprintf(`UPDATE participants SET status = '%s', cycle = cycle + 1, updated_at = $2 WHERE id = $1 AND status IN (%s)`,
		models.ParticipantStatusFilled, strings.Join(placeholders, ","))
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return false, fmt.Errorf("submit fill: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return false, fmt.Errorf("submit fill: %w", err)
	}
	if affected == 0 {
		tx.Rollback() //nolint:errcheck
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM participant_scores WHERE participant_id = $1`, participant.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return false, fmt.Errorf("clear scores: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM participant_documents WHERE participant_id = $1`, participant.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return false, fmt.Errorf("clear documents: %w", err)
	}

	const scoreQuery = `INSERT INTO participant_scores (id, participant_id, item_id, score, updated_at)
        VALUES (:id, :participant_id, :item_id, :score, :updated_at)`
	for i := range participant.Scores {
		if participant.Scores[i].ID == "" {
			participant.Scores[i].ID = uuid.NewString()
		}
		participant.Scores[i].ParticipantID = participant.ID
		participant.Scores[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, scoreQuery, participant.Scores[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return false, fmt.Errorf("insert score: %w", err)
		}
	}

	const documentQuery = `INSERT INTO participant_documents (id, participant_id, item_id, url, uploaded_at)
        VALUES (:id, :participant_id, :item_id, :url, :uploaded_at)`
	for i := range participant.Documents {
		if participant.Documents[i].ID == "" {
			participant.Documents[i].ID = uuid.NewString()
		}
		participant.Documents[i].ParticipantID = participant.ID
		participant.Documents[i].UploadedAt = now
		if _, err := tx.NamedExecContext(ctx, documentQuery, participant.Documents[i]); err != nil {
			tx.Rollback() //nolint:errcheck
			return false, fmt.Errorf("insert document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit fill: %w", err)
	}
	return true, nil
}

// TransitionStatus conditionally moves a participant between states. Returns
// false when the participant was not in the expected source state.
func (r *ParticipantRepository) TransitionStatus(ctx context.Context, id string, from, to models.ParticipantStatus) (bool, error) {
	const query = `UPDATE participants SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("transition participant status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition participant status: %w", err)
	}
	return affected > 0, nil
}

// ListPendingForRespondent returns participants the respondent still has to
// fill, across all open ratings.
func (r *ParticipantRepository) ListPendingForRespondent(ctx context.Context, respondentID string) ([]models.Participant, error) {
	query := fmt.Sprintf(`SELECT p.%s FROM participants p
        JOIN ratings r ON r.id = p.rating_id
        WHERE p.respondent_id = $1 AND p.status IN ($2, $3) AND r.status = $4
        ORDER BY p.updated_at ASC`, strings.ReplaceAll(participantColumns, ", ", ", p."))
	var participants []models.Participant
	err := r.db.SelectContext(ctx, &participants, query, respondentID,
		models.ParticipantStatusPending, models.ParticipantStatusRevision, models.RatingStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending fills: %w", err)
	}
	return participants, nil
}
