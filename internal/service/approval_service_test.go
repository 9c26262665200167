package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rating-flow-api/internal/dto"
	"github.com/noah-isme/rating-flow-api/internal/models"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
)

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type workflowEnv struct {
	store          *workflowStore
	participants   *participantStoreStub
	approvals      *approvalStoreStub
	cache          *cacheStub
	audit          *auditStub
	approvalSvc    *ApprovalService
	participantSvc *ParticipantService
}

func newWorkflowEnv() *workflowEnv {
	store := newWorkflowStore()
	participants := &participantStoreStub{store: store}
	approvals := &approvalStoreStub{store: store}
	cache := newCacheStub()
	audit := &auditStub{}
	approvalSvc := NewApprovalService(participants, approvals, store, cache, audit, nil, 0)
	participantSvc := NewParticipantService(participants, store, approvals, approvalSvc, audit, nil)
	return &workflowEnv{
		store:          store,
		participants:   participants,
		approvals:      approvals,
		cache:          cache,
		audit:          audit,
		approvalSvc:    approvalSvc,
		participantSvc: participantSvc,
	}
}

func claims(userID string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: role}
}

func (e *workflowEnv) seedRating(ratingID, authorID string, items []models.RatingItem) *models.Rating {
	rating := &models.Rating{
		ID:       ratingID,
		Title:    "Quarterly review",
		Type:     "quarterly",
		AuthorID: authorID,
		Status:   models.RatingStatusPending,
		Items:    items,
	}
	e.store.addRating(rating)
	return rating
}

func (e *workflowEnv) seedParticipant(id, ratingID, respondentID string, departmentReviewer, unitReviewer *string) *models.Participant {
	participant := &models.Participant{
		ID:                   id,
		RatingID:             ratingID,
		RespondentID:         respondentID,
		Status:               models.ParticipantStatusPending,
		DepartmentReviewerID: departmentReviewer,
		UnitReviewerID:       unitReviewer,
	}
	e.store.addParticipant(participant)
	return participant
}

func singleItem() []models.RatingItem {
	return []models.RatingItem{{ID: "item-1", Name: "Delivery", MaxScore: 10}}
}

// One respondent, no department or unit reviewer: the chain skips straight to
// the author, who is never skippable, and approval auto-closes the rating.
func TestChainSkipsToAuthorAndAutoCloses(t *testing.T) {
	env := newWorkflowEnv()
	env.seedRating("rating-1", "author-1", singleItem())
	env.seedParticipant("part-1", "rating-1", "staff-1", nil, nil)

	_, err := env.participantSvc.Fill(context.Background(), "part-1", dto.FillParticipantRequest{
		Scores: map[string]float64{"item-1": 7},
	}, claims("staff-1", models.RoleStaff))
	require.NoError(t, err)

	actions, err := env.approvalSvc.PendingActionsFor(context.Background(), "author-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, models.ActionRoleAuthor, actions[0].Role)

	participant, err := env.approvalSvc.Decide(context.Background(), "part-1", dto.DecideRequest{
		Level:  models.LevelAuthor,
		Status: models.ApprovalStatusApproved,
	}, claims("author-1", models.RoleAuthor))
	require.NoError(t, err)
	require.Equal(t, models.ParticipantStatusApproved, participant.Status)
	require.Equal(t, models.RatingStatusClosed, env.store.ratings["rating-1"].Status)
}

// Department revision routes the submission back to the respondent; the next
// fill re-opens the department level, not unit or author.
func TestRevisionReopensAtRequestingLevel(t *testing.T) {
	env := newWorkflowEnv()
	departmentReviewer := "dep-rev-1"
	unitReviewer := "unit-rev-1"
	env.seedRating("rating-1", "author-1", singleItem())
	env.seedParticipant("part-1", "rating-1", "staff-1", &departmentReviewer, &unitReviewer)

	respondent := claims("staff-1", models.RoleStaff)
	fill := dto.FillParticipantRequest{Scores: map[string]float64{"item-1": 5}}
	_, err := env.participantSvc.Fill(context.Background(), "part-1", fill, respondent)
	require.NoError(t, err)

	_, err = env.approvalSvc.Decide(context.Background(), "part-1", dto.DecideRequest{
		Level:    models.LevelDepartment,
		Status:   models.ApprovalStatusRevision,
		Comments: models.CommentMap{"item-1": "fix units"},
	}, claims(departmentReviewer, models.RoleStaff))
	require.NoError(t, err)
	require.Equal(t, models.ParticipantStatusRevision, env.store.participants["part-1"].Status)

	_, err = env.participantSvc.Fill(context.Background(), "part-1", fill, respondent)
	require.NoError(t, err)

	actions, err := env.approvalSvc.PendingActionsFor(context.Background(), departmentReviewer)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, models.ActionRoleDepartmentReviewer, actions[0].Role)

	// Unit reviewer has nothing to decide yet.
	actions, err = env.approvalSvc.PendingActionsFor(context.Background(), unitReviewer)
	require.NoError(t, err)
	require.Empty(t, actions)
}

// Already-approved levels are honored after a revision: when the author
// requests changes, the resubmission resumes at the author, not department.
func TestResubmissionHonorsEarlierApprovals(t *testing.T) {
	env := newWorkflowEnv()
	departmentReviewer := "dep-rev-1"
	env.seedRating("rating-1", "author-1", singleItem())
	env.seedParticipant("part-1", "rating-1", "staff-1", &departmentReviewer, nil)

	respondent := claims("staff-1", models.RoleStaff)
	fill := dto.FillParticipantRequest{Scores: map[string]float64{"item-1": 9}}
	_, err := env.participantSvc.Fill(context.Background(), "part-1", fill, respondent)
	require.NoError(t, err)

	_, err = env.approvalSvc.Decide(context.Background(), "part-1", dto.DecideRequest{
		Level:  models.LevelDepartment,
		Status: models.ApprovalStatusApproved,
	}, claims(departmentReviewer, models.RoleStaff))
	require.NoError(t, err)

	_, err = env.approvalSvc.Decide(context.Background(), "part-1", dto.DecideRequest{
		Level:    models.LevelAuthor,
		Status:   models.ApprovalStatusRevision,
		Comments: models.CommentMap{"item-1": "needs context"},
	}, claims("author-1", models.RoleAuthor))
	require.NoError(t, err)

	_, err = env.participantSvc.Fill(context.Background(), "part-1", fill, respondent)
	require.NoError(t, err)

	// Department approval from the earlier cycle still counts.
	actions, err := env.approvalSvc.PendingActionsFor(context.Background(), departmentReviewer)
	require.NoError(t, err)
	require.Empty(t, actions)

	actions, err = env.approvalSvc.PendingActionsFor(context.Background(), "author-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, models.ActionRoleAuthor, actions[0].Role)
}

func TestDecideRevisionRequiresComment(t *testing.T) {
	env := newWorkflowEnv()
	departmentReviewer := "dep-rev-1"
	env.seedRating("rating-1", "author-1", singleItem())
	env.seedParticipant("part-1", "rating-1", "staff-1", &departmentReviewer, nil)

	_, err := env.participantSvc.Fill(context.Background(), "part-1", dto.FillParticipantRequest{
		Scores: map[string]float64{"item-1": 5},
	}, claims("staff-1", models.RoleStaff))
	require.NoError(t, err)

	_, err = env.approvalSvc.Decide(context.Background(), "part-1", dto.DecideRequest{
		Level:    models.LevelDepartment,
		Status:   models.ApprovalStatusRevision,
		Comments: models.CommentMap{"item-1": ""},
	}, claims(departmentReviewer, models.RoleStaff))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrCommentRequired.Code, appErr.Code)
}

func TestDecideRejectsWrongReviewerAndWrongTurn(t *testing.T) {
	env := newWorkflowEnv()
	departmentReviewer := "dep-rev-1"
	env.seedRating("rating-1", "author-1", singleItem())
	env.seedParticipant("part-1", "rating-1", "staff-1", &departmentReviewer, nil)

	_, err := env.participantSvc.Fill(context.Background(), "part-1", dto.FillParticipantRequest{
		Scores: map[string]float64{"item-1": 5},
	}, claims("staff-1", models.RoleStaff))
	require.NoError(t, err)

	// Someone other than the assigned department reviewer.
	_, err = env.approvalSvc.Decide(context.Background(), "part-1", dto.DecideRequest{
		Level:  models.LevelDepartment,
		Status: models.ApprovalStatusApproved,
	}, claims("intruder", models.RoleStaff))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	// The author cannot jump the queue while department review is open.
	_, err = env.approvalSvc.Decide(context.Background(), "part-1", dto.DecideRequest{
		Level:  models.LevelAuthor,
		Status: models.ApprovalStatusApproved,
	}, claims("author-1", models.RoleAuthor))
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

// Author comments outrank unit and department comments from the same cycle.
func TestFeedbackPrefersHighestLevel(t *testing.T) {
	env := newWorkflowEnv()
	departmentReviewer := "dep-rev-1"
	env.seedRating("rating-1", "author-1", singleItem())
	env.seedParticipant("part-1", "rating-1", "staff-1", &departmentReviewer, nil)

	_, err := env.participantSvc.Fill(context.Background(), "part-1", dto.FillParticipantRequest{
		Scores: map[string]float64{"item-1": 6},
	}, claims("staff-1", models.RoleStaff))
	require.NoError(t, err)

	_, err = env.approvalSvc.Decide(context.Background(), "part-1", dto.DecideRequest{
		Level:    models.LevelDepartment,
		Status:   models.ApprovalStatusApproved,
		Comments: models.CommentMap{"item-1": "fine by department"},
	}, claims(departmentReviewer, models.RoleStaff))
	require.NoError(t, err)

	_, err = env.approvalSvc.Decide(context.Background(), "part-1", dto.DecideRequest{
		Level:    models.LevelAuthor,
		Status:   models.ApprovalStatusRevision,
		Comments: models.CommentMap{"item-1": "author wants more detail"},
	}, claims("author-1", models.RoleAuthor))
	require.NoError(t, err)

	feedback, err := env.approvalSvc.Feedback(context.Background(), "part-1", claims("staff-1", models.RoleStaff))
	require.NoError(t, err)
	require.Equal(t, models.LevelAuthor, feedback.Level)
	require.Equal(t, "author wants more detail", feedback.Comments["item-1"])
}

// Feedback and history carry reviewer comments and scores, so only the people
// on the chain may read them.
func TestFeedbackAndHistoryRestrictedToChain(t *testing.T) {
	env := newWorkflowEnv()
	departmentReviewer := "dep-rev-1"
	env.seedRating("rating-1", "author-1", singleItem())
	env.seedParticipant("part-1", "rating-1", "staff-1", &departmentReviewer, nil)

	_, err := env.participantSvc.Fill(context.Background(), "part-1", dto.FillParticipantRequest{
		Scores: map[string]float64{"item-1": 7},
	}, claims("staff-1", models.RoleStaff))
	require.NoError(t, err)

	_, err = env.approvalSvc.Decide(context.Background(), "part-1", dto.DecideRequest{
		Level:    models.LevelDepartment,
		Status:   models.ApprovalStatusRevision,
		Comments: models.CommentMap{"item-1": "tighten this up"},
	}, claims(departmentReviewer, models.RoleStaff))
	require.NoError(t, err)

	outsider := claims("bystander", models.RoleStaff)
	var appErr *appErrors.Error

	_, err = env.approvalSvc.Feedback(context.Background(), "part-1", outsider)
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	_, err = env.approvalSvc.History(context.Background(), "part-1", outsider)
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	for _, actor := range []*models.JWTClaims{
		claims("staff-1", models.RoleStaff),
		claims(departmentReviewer, models.RoleStaff),
		claims("author-1", models.RoleAuthor),
		claims("admin-1", models.RoleAdmin),
	} {
		_, err = env.approvalSvc.Feedback(context.Background(), "part-1", actor)
		require.NoError(t, err)
		_, err = env.approvalSvc.History(context.Background(), "part-1", actor)
		require.NoError(t, err)
	}
}

func TestPendingActionsUsesCache(t *testing.T) {
	env := newWorkflowEnv()
	env.seedRating("rating-1", "author-1", singleItem())
	env.seedParticipant("part-1", "rating-1", "staff-1", nil, nil)

	actions, err := env.approvalSvc.PendingActionsFor(context.Background(), "staff-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, models.ActionRoleRespondent, actions[0].Role)

	cached, err := env.approvalSvc.PendingActionsFor(context.Background(), "staff-1")
	require.NoError(t, err)
	require.Equal(t, actions, cached)
	require.Equal(t, 1, env.cache.hits)
}
