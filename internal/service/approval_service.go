package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rating-flow-api/internal/dto"
	"github.com/noah-isme/rating-flow-api/internal/models"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
)

type chainParticipantStore interface {
	GetByID(ctx context.Context, id string) (*models.Participant, error)
	TransitionStatus(ctx context.Context, id string, from, to models.ParticipantStatus) (bool, error)
	ListPendingForRespondent(ctx context.Context, respondentID string) ([]models.Participant, error)
}

type chainApprovalStore interface {
	OpenPending(ctx context.Context, participantID string, level models.ReviewLevel, cycle int) error
	Decide(ctx context.Context, participantID string, level models.ReviewLevel, cycle int, status models.ApprovalStatus, comments models.CommentMap, reviewerID string) (bool, error)
	ListByParticipant(ctx context.Context, participantID string) ([]models.Approval, error)
	ListApprovedLevels(ctx context.Context, participantID string) ([]models.ReviewLevel, error)
	ListPendingForReviewer(ctx context.Context, reviewerID string) ([]models.PendingAction, error)
}

type chainRatingStore interface {
	GetByID(ctx context.Context, id string) (*models.Rating, error)
	CloseIfFullyApproved(ctx context.Context, id string) (bool, error)
}

type actionsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type workflowMetrics interface {
	RecordFill()
	RecordDecision(level, status string)
	RecordRatingClosed()
}

// ApprovalService walks submissions through the review chain: department,
// then unit, then author. Levels without an assigned reviewer are skipped;
// the author level never is.
type ApprovalService struct {
	participants chainParticipantStore
	approvals    chainApprovalStore
	ratings      chainRatingStore
	cache        actionsCache
	audit        auditRecorder
	metrics      workflowMetrics
	logger       *zap.Logger
	cacheTTL     time.Duration
}

// NewApprovalService constructs the service. cache may be nil; pending-action
// queries then always hit the database.
func NewApprovalService(participants chainParticipantStore, approvals chainApprovalStore, ratings chainRatingStore, cache actionsCache, audit auditRecorder, logger *zap.Logger, cacheTTL time.Duration) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &ApprovalService{
		participants: participants,
		approvals:    approvals,
		ratings:      ratings,
		cache:        cache,
		audit:        audit,
		logger:       logger,
		cacheTTL:     cacheTTL,
	}
}

// UseMetrics attaches workflow counters. Optional; nil-safe when unset.
func (s *ApprovalService) UseMetrics(m workflowMetrics) {
	s.metrics = m
}

// Advance opens the first review level that has an assigned reviewer and no
// APPROVED record yet. When no level remains, the participant becomes
// approved and the rating is asked to close itself if everyone is done.
// Earlier approvals survive revisions, so a resubmission resumes at the level
// that requested changes instead of restarting from department.
func (s *ApprovalService) Advance(ctx context.Context, participant *models.Participant, rating *models.Rating) error {
	approvedLevels, err := s.approvals.ListApprovedLevels(ctx, participant.ID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approval history")
	}
	approved := make(map[models.ReviewLevel]struct{}, len(approvedLevels))
	for _, level := range approvedLevels {
		approved[level] = struct{}{}
	}

	for _, level := range models.LevelOrder {
		if !s.levelAssigned(level, participant) {
			continue
		}
		if _, done := approved[level]; done {
			continue
		}
		if err := s.approvals.OpenPending(ctx, participant.ID, level, participant.Cycle); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open review level")
		}
		s.invalidateActions(ctx)
		return nil
	}

	moved, err := s.participants.TransitionStatus(ctx, participant.ID, models.ParticipantStatusFilled, models.ParticipantStatusApproved)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve participant")
	}
	if !moved {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "participant is not awaiting review")
	}
	participant.Status = models.ParticipantStatusApproved

	closed, err := s.ratings.CloseIfFullyApproved(ctx, participant.RatingID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close rating")
	}
	if closed {
		s.logger.Info("rating closed, all participants approved", zap.String("rating_id", participant.RatingID))
		if s.metrics != nil {
			s.metrics.RecordRatingClosed()
		}
	}
	s.invalidateActions(ctx)
	return nil
}

// Decide records a reviewer's verdict at one level. APPROVED advances the
// chain; REVISION hands the submission back to the respondent and requires at
// least one non-empty comment.
func (s *ApprovalService) Decide(ctx context.Context, participantID string, req dto.DecideRequest, actor *models.JWTClaims) (*models.Participant, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !req.Level.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown review level %q", req.Level))
	}
	if req.Status != models.ApprovalStatusApproved && req.Status != models.ApprovalStatusRevision {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be APPROVED or REVISION")
	}
	if req.Status == models.ApprovalStatusRevision && !req.Comments.HasContent() {
		return nil, appErrors.ErrCommentRequired
	}

	participant, rating, err := s.loadChain(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if rating.Status != models.RatingStatusPending {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "rating is not open for review")
	}
	if participant.Status != models.ParticipantStatusFilled {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "participant is not awaiting review")
	}
	if err := s.authorizeReviewer(req.Level, participant, rating, actor); err != nil {
		return nil, err
	}

	decided, err := s.approvals.Decide(ctx, participant.ID, req.Level, participant.Cycle, req.Status, req.Comments, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}
	if !decided {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("level %s is not awaiting a decision", req.Level))
	}

	if req.Status == models.ApprovalStatusRevision {
		moved, err := s.participants.TransitionStatus(ctx, participant.ID, models.ParticipantStatusFilled, models.ParticipantStatusRevision)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to request revision")
		}
		if !moved {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "participant is not awaiting review")
		}
		participant.Status = models.ParticipantStatusRevision
		s.invalidateActions(ctx)
	} else {
		if err := s.Advance(ctx, participant, rating); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.RecordDecision(string(req.Level), string(req.Status))
	}
	s.emitAudit(ctx, actor.UserID, participant.ID, string(req.Level), string(req.Status))
	return participant, nil
}

// Feedback returns the reviewer comments to surface for the participant's
// current submission, with the highest level winning when several levels
// commented in the same cycle: author over unit over department.
func (s *ApprovalService) Feedback(ctx context.Context, participantID string, actor *models.JWTClaims) (*dto.FeedbackResponse, error) {
	participant, rating, err := s.loadChain(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeChainRead(participant, rating, actor); err != nil {
		return nil, err
	}
	approvals, err := s.approvals.ListByParticipant(ctx, participant.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}

	byLevel := make(map[models.ReviewLevel]models.Approval)
	for _, approval := range approvals {
		if approval.Cycle != participant.Cycle {
			continue
		}
		if !approval.Comments.HasContent() {
			continue
		}
		byLevel[approval.Level] = approval
	}
	for _, level := range models.CommentPrecedence {
		if approval, ok := byLevel[level]; ok {
			return &dto.FeedbackResponse{
				Level:    approval.Level,
				Cycle:    approval.Cycle,
				Comments: approval.Comments,
			}, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "no reviewer feedback for the current submission")
}

// History returns the participant with every decision ever recorded for it.
// Revision records from earlier cycles stay visible.
func (s *ApprovalService) History(ctx context.Context, participantID string, actor *models.JWTClaims) (*dto.ParticipantDetail, error) {
	participant, rating, err := s.loadChain(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeChainRead(participant, rating, actor); err != nil {
		return nil, err
	}
	approvals, err := s.approvals.ListByParticipant(ctx, participant.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approvals")
	}
	return &dto.ParticipantDetail{Participant: *participant, Approvals: approvals}, nil
}

// PendingActionsFor lists what the user still has to do: participants they
// must fill and submissions awaiting their decision. Results are cached
// briefly since presentation layers poll this query.
func (s *ApprovalService) PendingActionsFor(ctx context.Context, userID string) ([]models.PendingAction, error) {
	cacheKey := pendingActionsKey(userID)
	if s.cache != nil {
		var cached []models.PendingAction
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("pending actions cache read failed", zap.Error(err))
		}
	}

	actions := make([]models.PendingAction, 0)
	fills, err := s.participants.ListPendingForRespondent(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending fills")
	}
	for _, participant := range fills {
		actions = append(actions, models.PendingAction{
			RatingID:      participant.RatingID,
			ParticipantID: participant.ID,
			Role:          models.ActionRoleRespondent,
		})
	}
	reviews, err := s.approvals.ListPendingForReviewer(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending reviews")
	}
	actions = append(actions, reviews...)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, actions, s.cacheTTL); err != nil {
			s.logger.Warn("pending actions cache write failed", zap.Error(err))
		}
	}
	return actions, nil
}

func (s *ApprovalService) loadChain(ctx context.Context, participantID string) (*models.Participant, *models.Rating, error) {
	participant, err := s.participants.GetByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participant")
	}
	rating, err := s.ratings.GetByID(ctx, participant.RatingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rating")
	}
	return participant, rating, nil
}

func (s *ApprovalService) levelAssigned(level models.ReviewLevel, participant *models.Participant) bool {
	switch level {
	case models.LevelDepartment:
		return participant.DepartmentReviewerID != nil && *participant.DepartmentReviewerID != ""
	case models.LevelUnit:
		return participant.UnitReviewerID != nil && *participant.UnitReviewerID != ""
	case models.LevelAuthor:
		// The author is always the last gate.
		return true
	default:
		return false
	}
}

// authorizeChainRead gates submission and review data the same way
// ParticipantService.Get does: the respondent, either assigned reviewer, the
// rating's author, or an admin.
func (s *ApprovalService) authorizeChainRead(participant *models.Participant, rating *models.Rating, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleAdmin || participant.RespondentID == actor.UserID {
		return nil
	}
	if participant.DepartmentReviewerID != nil && *participant.DepartmentReviewerID == actor.UserID {
		return nil
	}
	if participant.UnitReviewerID != nil && *participant.UnitReviewerID == actor.UserID {
		return nil
	}
	if rating.AuthorID == actor.UserID {
		return nil
	}
	return appErrors.ErrForbidden
}

func (s *ApprovalService) authorizeReviewer(level models.ReviewLevel, participant *models.Participant, rating *models.Rating, actor *models.JWTClaims) error {
	var assigned string
	switch level {
	case models.LevelDepartment:
		if participant.DepartmentReviewerID != nil {
			assigned = *participant.DepartmentReviewerID
		}
	case models.LevelUnit:
		if participant.UnitReviewerID != nil {
			assigned = *participant.UnitReviewerID
		}
	case models.LevelAuthor:
		assigned = rating.AuthorID
	}
	if assigned == "" || assigned != actor.UserID {
		return appErrors.ErrForbidden
	}
	return nil
}

func (s *ApprovalService) invalidateActions(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "pending-actions:*"); err != nil {
		s.logger.Warn("pending actions cache invalidation failed", zap.Error(err))
	}
}

func (s *ApprovalService) emitAudit(ctx context.Context, userID, participantID, level, status string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionApprovalDecide,
		Resource:   "participant",
		ResourceID: &participantID,
		NewValues:  []byte(fmt.Sprintf(`{"level":%q,"status":%q}`, level, status)),
		IPAddress:  "system",
		UserAgent:  "approval-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func pendingActionsKey(userID string) string {
	return "pending-actions:" + userID
}
