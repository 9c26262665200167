package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/rating-flow-api/internal/dto"
	"github.com/noah-isme/rating-flow-api/internal/models"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
)

type participantStore interface {
	GetByID(ctx context.Context, id string) (*models.Participant, error)
	List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, error)
	SubmitFill(ctx context.Context, participant *models.Participant, expected []models.ParticipantStatus) (bool, error)
	TransitionStatus(ctx context.Context, id string, from, to models.ParticipantStatus) (bool, error)
}

type fillRatingStore interface {
	GetByID(ctx context.Context, id string) (*models.Rating, error)
}

type staleApprovalSweeper interface {
	ClosePending(ctx context.Context, participantID string, before int) error
}

type chainAdvancer interface {
	Advance(ctx context.Context, participant *models.Participant, rating *models.Rating) error
}

// ParticipantService handles respondent-side operations: filling scores and
// documents, and reading one's own submissions.
type ParticipantService struct {
	participants participantStore
	ratings      fillRatingStore
	approvals    staleApprovalSweeper
	chain        chainAdvancer
	audit        auditRecorder
	metrics      workflowMetrics
	logger       *zap.Logger
}

// NewParticipantService constructs the service.
func NewParticipantService(participants participantStore, ratings fillRatingStore, approvals staleApprovalSweeper, chain chainAdvancer, audit auditRecorder, logger *zap.Logger) *ParticipantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParticipantService{
		participants: participants,
		ratings:      ratings,
		approvals:    approvals,
		chain:        chain,
		audit:        audit,
		logger:       logger,
	}
}

// UseMetrics attaches workflow counters. Optional; nil-safe when unset.
func (s *ParticipantService) UseMetrics(m workflowMetrics) {
	s.metrics = m
}

// Fill submits scores and document references for every item of the rating.
// All-or-nothing: on any validation failure nothing persists and the
// participant state is unchanged. On success the participant moves to filled
// and the review chain opens its first applicable level.
func (s *ParticipantService) Fill(ctx context.Context, participantID string, req dto.FillParticipantRequest, actor *models.JWTClaims) (*models.Participant, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	participant, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}
	if participant.RespondentID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	rating, err := s.ratings.GetByID(ctx, participant.RatingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rating")
	}
	if rating.Status != models.RatingStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "rating is not open for submissions")
	}
	if participant.Status != models.ParticipantStatusPending && participant.Status != models.ParticipantStatusRevision {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "submission already under review or approved")
	}

	scores, documents, err := validateFill(rating.Items, req)
	if err != nil {
		return nil, err
	}
	participant.Scores = scores
	participant.Documents = documents
	prevStatus := participant.Status

	filled, err := s.participants.SubmitFill(ctx, participant, []models.ParticipantStatus{
		models.ParticipantStatusPending,
		models.ParticipantStatusRevision,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit fill")
	}
	if !filled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "submission already under review or approved")
	}
	participant.Status = models.ParticipantStatusFilled
	participant.Cycle++

	if err := s.approvals.ClosePending(ctx, participant.ID, participant.Cycle); err != nil {
		s.logger.Warn("failed to sweep stale approvals", zap.Error(err), zap.String("participant_id", participant.ID))
	}
	if err := s.chain.Advance(ctx, participant, rating); err != nil {
		// Hand the submission back to the respondent when no review level
		// could be opened, otherwise the fill would be stranded in filled
		// with nobody able to act on it.
		if _, revertErr := s.participants.TransitionStatus(ctx, participant.ID, models.ParticipantStatusFilled, prevStatus); revertErr != nil {
			s.logger.Error("failed to revert participant after chain error",
				zap.Error(revertErr), zap.String("participant_id", participant.ID))
		} else {
			participant.Status = prevStatus
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordFill()
	}
	s.emitAudit(ctx, actor.UserID, participant.ID)
	return participant, nil
}

// Get returns one participant with its submission. Respondents see their own
// rows; the rating's author and admins see all of them.
func (s *ParticipantService) Get(ctx context.Context, participantID string, actor *models.JWTClaims) (*models.Participant, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	participant, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}
	if err := s.authorizeRead(ctx, participant, actor); err != nil {
		return nil, err
	}
	return participant, nil
}

// ListForRating returns all participants of one rating for its author or an
// admin.
func (s *ParticipantService) ListForRating(ctx context.Context, ratingID string, actor *models.JWTClaims) ([]models.Participant, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	rating, err := s.ratings.GetByID(ctx, ratingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rating")
	}
	if actor.Role != models.RoleAdmin && rating.AuthorID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	participants, err := s.participants.List(ctx, models.ParticipantFilter{RatingID: ratingID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list participants")
	}
	return participants, nil
}

func (s *ParticipantService) authorizeRead(ctx context.Context, participant *models.Participant, actor *models.JWTClaims) error {
	if actor.Role == models.RoleAdmin || participant.RespondentID == actor.UserID {
		return nil
	}
	if participant.DepartmentReviewerID != nil && *participant.DepartmentReviewerID == actor.UserID {
		return nil
	}
	if participant.UnitReviewerID != nil && *participant.UnitReviewerID == actor.UserID {
		return nil
	}
	rating, err := s.ratings.GetByID(ctx, participant.RatingID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rating")
	}
	if rating.AuthorID == actor.UserID {
		return nil
	}
	return appErrors.ErrForbidden
}

// validateFill checks every score against its item and collects the rows to
// persist. Violations are reported together, naming the offending items.
func validateFill(items []models.RatingItem, req dto.FillParticipantRequest) ([]models.ItemScore, []models.ItemDocument, error) {
	byID := make(map[string]models.RatingItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	var violations []string
	for itemID := range req.Scores {
		if _, ok := byID[itemID]; !ok {
			violations = append(violations, fmt.Sprintf("unknown item %s", itemID))
		}
	}
	for itemID := range req.Documents {
		if _, ok := byID[itemID]; !ok {
			violations = append(violations, fmt.Sprintf("unknown item %s", itemID))
		}
	}

	scores := make([]models.ItemScore, 0, len(items))
	documents := make([]models.ItemDocument, 0)
	for _, item := range items {
		score, ok := req.Scores[item.ID]
		if !ok {
			violations = append(violations, fmt.Sprintf("%s: score missing", item.Name))
			continue
		}
		if score < 0 || score > item.MaxScore {
			violations = append(violations, fmt.Sprintf("%s: score %g outside [0, %g]", item.Name, score, item.MaxScore))
			continue
		}
		refs := req.Documents[item.ID]
		if item.RequiresDocument && score > 0 && len(refs) == 0 {
			violations = append(violations, fmt.Sprintf("%s: supporting document required", item.Name))
			continue
		}
		scores = append(scores, models.ItemScore{ItemID: item.ID, Score: score})
		for _, url := range refs {
			documents = append(documents, models.ItemDocument{ItemID: item.ID, URL: url})
		}
	}
	if len(violations) > 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, strings.Join(violations, "; "))
	}
	return scores, documents, nil
}

func (s *ParticipantService) emitAudit(ctx context.Context, userID, participantID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionParticipantFill,
		Resource:   "participant",
		ResourceID: &participantID,
		IPAddress:  "system",
		UserAgent:  "participant-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
