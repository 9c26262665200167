package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/rating-flow-api/internal/dto"
	"github.com/noah-isme/rating-flow-api/internal/models"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
)

type ratingStore interface {
	Create(ctx context.Context, rating *models.Rating, participants []models.Participant) error
	GetByID(ctx context.Context, id string) (*models.Rating, error)
	List(ctx context.Context, filter models.RatingFilter) ([]models.Rating, error)
	Update(ctx context.Context, rating *models.Rating) error
	UpdateReviewers(ctx context.Context, ratingID string, participants []models.Participant) error
	TransitionStatus(ctx context.Context, id string, from, to models.RatingStatus) (bool, error)
	ForceClose(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type ratingParticipantStore interface {
	List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, error)
}

type userDirectory interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
}

// RatingService owns the rating lifecycle: created -> pending -> closed.
type RatingService struct {
	ratings      ratingStore
	participants ratingParticipantStore
	users        userDirectory
	audit        auditRecorder
	logger       *zap.Logger
	validate     *validator.Validate
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// NewRatingService constructs the service.
func NewRatingService(ratings ratingStore, participants ratingParticipantStore, users userDirectory, audit auditRecorder, logger *zap.Logger) *RatingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RatingService{
		ratings:      ratings,
		participants: participants,
		users:        users,
		audit:        audit,
		logger:       logger,
		validate:     validator.New(),
	}
}

// Create builds a rating plus one pending participant per respondent. The
// reviewer assignment is validated against the respondents before anything
// persists, so invalid assignments never reach storage.
func (s *RatingService) Create(ctx context.Context, req dto.CreateRatingRequest, actor *models.JWTClaims) (*models.Rating, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	respondents, assignment, err := s.resolveAssignment(ctx, req.RespondentIDs, req.Reviewers)
	if err != nil {
		return nil, err
	}

	rating := &models.Rating{
		Title:    req.Title,
		Type:     req.Type,
		AuthorID: actor.UserID,
		Deadline: req.Deadline,
		Status:   models.RatingStatusCreated,
		Items:    buildItems(req.Items),
	}
	participants := buildParticipants(req.RespondentIDs, respondents, assignment)

	if err := s.ratings.Create(ctx, rating, participants); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create rating")
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionRatingCreate, rating.ID)
	return rating, nil
}

// Get returns a rating with its items.
func (s *RatingService) Get(ctx context.Context, id string) (*models.Rating, error) {
	rating, err := s.ratings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rating")
	}
	return rating, nil
}

// List returns ratings visible to the actor. Authors see their own ratings;
// admins see everything.
func (s *RatingService) List(ctx context.Context, query dto.RatingQuery, actor *models.JWTClaims) ([]models.Rating, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.RatingFilter{
		Status: query.Status,
		Type:   query.Type,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	if actor.Role != models.RoleAdmin {
		filter.AuthorID = actor.UserID
	}
	ratings, err := s.ratings.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ratings")
	}
	return ratings, nil
}

// Update edits a rating definition. Allowed only while the rating is still
// in created state and only for its author or an admin.
func (s *RatingService) Update(ctx context.Context, id string, req dto.UpdateRatingRequest, actor *models.JWTClaims) (*models.Rating, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	rating, err := s.authorizedRating(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if rating.Status != models.RatingStatusCreated {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "items are frozen once the rating leaves created state")
	}

	rating.Title = req.Title
	rating.Type = req.Type
	rating.Deadline = req.Deadline
	rating.Items = buildItems(req.Items)
	if err := s.ratings.Update(ctx, rating); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update rating")
	}

	if req.Reviewers != nil {
		if err := s.reassignReviewers(ctx, rating, *req.Reviewers); err != nil {
			return nil, err
		}
	}
	return rating, nil
}

// Complete publishes the rating: created -> pending, freezing its items.
// Retry-safe: completing an already-pending rating is a no-op success.
func (s *RatingService) Complete(ctx context.Context, id string, actor *models.JWTClaims) (*models.Rating, error) {
	rating, err := s.authorizedRating(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	switch rating.Status {
	case models.RatingStatusPending:
		return rating, nil
	case models.RatingStatusClosed:
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "rating is already closed")
	}
	moved, err := s.ratings.TransitionStatus(ctx, id, models.RatingStatusCreated, models.RatingStatusPending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete rating")
	}
	if !moved {
		// Lost a race with another complete or a delete; reload to report truth.
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "rating is not in created state")
	}
	rating.Status = models.RatingStatusPending
	s.emitAudit(ctx, actor.UserID, models.AuditActionRatingComplete, rating.ID)
	return rating, nil
}

// Finalize force-closes the rating regardless of participant completion.
// Idempotent: finalizing an already-closed rating succeeds without effect.
func (s *RatingService) Finalize(ctx context.Context, id string, actor *models.JWTClaims) (*models.Rating, error) {
	rating, err := s.authorizedRating(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if rating.Status == models.RatingStatusClosed {
		return rating, nil
	}
	// Unconditional close: the status may have moved since the load above
	// (a concurrent complete, or another finalize), and the override must
	// stick either way.
	if err := s.ratings.ForceClose(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize rating")
	}
	rating.Status = models.RatingStatusClosed
	s.emitAudit(ctx, actor.UserID, models.AuditActionRatingFinalize, rating.ID)
	return rating, nil
}

// Delete removes a rating that never left created state.
func (s *RatingService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	rating, err := s.authorizedRating(ctx, id, actor)
	if err != nil {
		return err
	}
	if rating.Status != models.RatingStatusCreated {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "only unpublished ratings can be deleted")
	}
	if err := s.ratings.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete rating")
	}
	return nil
}

func (s *RatingService) authorizedRating(ctx context.Context, id string, actor *models.JWTClaims) (*models.Rating, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	rating, err := s.ratings.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load rating")
	}
	if actor.Role != models.RoleAdmin && rating.AuthorID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	return rating, nil
}

func (s *RatingService) resolveAssignment(ctx context.Context, respondentIDs []string, payload dto.ReviewerAssignmentPayload) ([]models.User, models.ReviewerAssignment, error) {
	assignment := models.ReviewerAssignment{
		DepartmentReviewers: payload.DepartmentReviewers,
		UnitReviewers:       payload.UnitReviewers,
	}
	if assignment.DepartmentReviewers == nil {
		assignment.DepartmentReviewers = map[string]string{}
	}
	if assignment.UnitReviewers == nil {
		assignment.UnitReviewers = map[string]string{}
	}

	lookupIDs := append([]string(nil), respondentIDs...)
	for _, reviewerID := range assignment.DepartmentReviewers {
		lookupIDs = append(lookupIDs, reviewerID)
	}
	for _, reviewerID := range assignment.UnitReviewers {
		lookupIDs = append(lookupIDs, reviewerID)
	}
	users, err := s.users.FindByIDs(ctx, lookupIDs)
	if err != nil {
		return nil, assignment, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load users")
	}

	respondents := make([]models.User, 0, len(respondentIDs))
	for _, id := range respondentIDs {
		respondent, ok := users[id]
		if !ok {
			return nil, assignment, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("respondent %s not found", id))
		}
		respondents = append(respondents, respondent)
	}
	if err := ValidateReviewerAssignment(assignment, respondents, users); err != nil {
		return nil, assignment, err
	}
	return respondents, assignment, nil
}

func (s *RatingService) reassignReviewers(ctx context.Context, rating *models.Rating, payload dto.ReviewerAssignmentPayload) error {
	participants, err := s.participants.List(ctx, models.ParticipantFilter{RatingID: rating.ID})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participants")
	}
	respondentIDs := make([]string, 0, len(participants))
	for _, participant := range participants {
		respondentIDs = append(respondentIDs, participant.RespondentID)
	}
	respondents, assignment, err := s.resolveAssignment(ctx, respondentIDs, payload)
	if err != nil {
		return err
	}

	byID := make(map[string]models.User, len(respondents))
	for _, respondent := range respondents {
		byID[respondent.ID] = respondent
	}
	for i := range participants {
		respondent := byID[participants[i].RespondentID]
		participants[i].DepartmentReviewerID = nil
		participants[i].UnitReviewerID = nil
		if id, ok := assignment.ReviewerFor(models.LevelDepartment, derefOrEmpty(respondent.DepartmentID), ""); ok {
			participants[i].DepartmentReviewerID = &id
		}
		if id, ok := assignment.ReviewerFor(models.LevelUnit, "", derefOrEmpty(respondent.UnitID)); ok {
			participants[i].UnitReviewerID = &id
		}
	}
	if err := s.ratings.UpdateReviewers(ctx, rating.ID, participants); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update reviewers")
	}
	return nil
}

func (s *RatingService) emitAudit(ctx context.Context, userID, action, ratingID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "rating",
		ResourceID: &ratingID,
		IPAddress:  "system",
		UserAgent:  "rating-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func buildItems(payloads []dto.RatingItemPayload) []models.RatingItem {
	items := make([]models.RatingItem, len(payloads))
	for i, payload := range payloads {
		items[i] = models.RatingItem{
			Name:             payload.Name,
			MaxScore:         payload.MaxScore,
			Comment:          payload.Comment,
			RequiresDocument: payload.RequiresDocument,
			Position:         i,
		}
	}
	return items
}

func buildParticipants(respondentIDs []string, respondents []models.User, assignment models.ReviewerAssignment) []models.Participant {
	byID := make(map[string]models.User, len(respondents))
	for _, respondent := range respondents {
		byID[respondent.ID] = respondent
	}
	participants := make([]models.Participant, len(respondentIDs))
	for i, respondentID := range respondentIDs {
		respondent := byID[respondentID]
		participant := models.Participant{
			RespondentID: respondentID,
			Status:       models.ParticipantStatusPending,
		}
		if id, ok := assignment.ReviewerFor(models.LevelDepartment, derefOrEmpty(respondent.DepartmentID), ""); ok {
			participant.DepartmentReviewerID = &id
		}
		if id, ok := assignment.ReviewerFor(models.LevelUnit, "", derefOrEmpty(respondent.UnitID)); ok {
			participant.UnitReviewerID = &id
		}
		participants[i] = participant
	}
	return participants
}
