package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rating-flow-api/internal/dto"
	"github.com/noah-isme/rating-flow-api/internal/models"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
)

type ratingRepoStub struct {
	ratings      map[string]*models.Rating
	participants map[string]*models.Participant
}

func newRatingRepoStub() *ratingRepoStub {
	return &ratingRepoStub{
		ratings:      make(map[string]*models.Rating),
		participants: make(map[string]*models.Participant),
	}
}

func (r *ratingRepoStub) Create(ctx context.Context, rating *models.Rating, participants []models.Participant) error {
	if rating.ID == "" {
		rating.ID = uuid.NewString()
	}
	copy := *rating
	r.ratings[rating.ID] = &copy
	for i := range participants {
		if participants[i].ID == "" {
			participants[i].ID = uuid.NewString()
		}
		participants[i].RatingID = rating.ID
		p := participants[i]
		r.participants[p.ID] = &p
	}
	return nil
}

func (r *ratingRepoStub) GetByID(ctx context.Context, id string) (*models.Rating, error) {
	if rating, ok := r.ratings[id]; ok {
		copy := *rating
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (r *ratingRepoStub) List(ctx context.Context, filter models.RatingFilter) ([]models.Rating, error) {
	var result []models.Rating
	for _, rating := range r.ratings {
		if filter.AuthorID != "" && rating.AuthorID != filter.AuthorID {
			continue
		}
		result = append(result, *rating)
	}
	return result, nil
}

func (r *ratingRepoStub) Update(ctx context.Context, rating *models.Rating) error {
	stored, ok := r.ratings[rating.ID]
	if !ok {
		return sql.ErrNoRows
	}
	*stored = *rating
	return nil
}

func (r *ratingRepoStub) UpdateReviewers(ctx context.Context, ratingID string, participants []models.Participant) error {
	for _, participant := range participants {
		if stored, ok := r.participants[participant.ID]; ok {
			stored.DepartmentReviewerID = participant.DepartmentReviewerID
			stored.UnitReviewerID = participant.UnitReviewerID
		}
	}
	return nil
}

func (r *ratingRepoStub) TransitionStatus(ctx context.Context, id string, from, to models.RatingStatus) (bool, error) {
	rating, ok := r.ratings[id]
	if !ok || rating.Status != from {
		return false, nil
	}
	rating.Status = to
	return true, nil
}

func (r *ratingRepoStub) ForceClose(ctx context.Context, id string) error {
	rating, ok := r.ratings[id]
	if !ok {
		return sql.ErrNoRows
	}
	rating.Status = models.RatingStatusClosed
	return nil
}

func (r *ratingRepoStub) Delete(ctx context.Context, id string) error {
	delete(r.ratings, id)
	return nil
}

func (r *ratingRepoStub) ListParticipants(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, error) {
	var result []models.Participant
	for _, participant := range r.participants {
		if filter.RatingID != "" && participant.RatingID != filter.RatingID {
			continue
		}
		result = append(result, *participant)
	}
	return result, nil
}

type participantListerStub struct {
	repo *ratingRepoStub
}

func (p *participantListerStub) List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, error) {
	return p.repo.ListParticipants(ctx, filter)
}

type userDirectoryStub struct {
	users map[string]models.User
}

func (u *userDirectoryStub) FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	result := make(map[string]models.User)
	for _, id := range ids {
		if user, ok := u.users[id]; ok {
			result[id] = user
		}
	}
	return result, nil
}

func newRatingService(repo *ratingRepoStub, users map[string]models.User) (*RatingService, *auditStub) {
	return newRatingServiceWithStore(repo, users, repo)
}

func newRatingServiceWithStore(store ratingStore, users map[string]models.User, repo *ratingRepoStub) (*RatingService, *auditStub) {
	audit := &auditStub{}
	svc := NewRatingService(store, &participantListerStub{repo: repo}, &userDirectoryStub{users: users}, audit, nil)
	return svc, audit
}

func ratingUsers() map[string]models.User {
	return map[string]models.User{
		"staff-1": {ID: "staff-1", Role: models.RoleStaff, DepartmentID: strPtr("dept-a"), UnitID: strPtr("unit-1")},
		"staff-2": {ID: "staff-2", Role: models.RoleStaff, DepartmentID: strPtr("dept-a"), UnitID: strPtr("unit-1")},
		"rev-1":   {ID: "rev-1", Role: models.RoleStaff, DepartmentID: strPtr("dept-a"), UnitID: strPtr("unit-1")},
		"rev-2":   {ID: "rev-2", Role: models.RoleStaff, DepartmentID: strPtr("dept-a"), UnitID: strPtr("unit-1")},
	}
}

func createRequest() dto.CreateRatingRequest {
	return dto.CreateRatingRequest{
		Title:         "Q3 performance",
		Type:          "quarterly",
		Items:         []dto.RatingItemPayload{{Name: "Delivery", MaxScore: 10}},
		RespondentIDs: []string{"staff-1", "staff-2"},
		Reviewers: dto.ReviewerAssignmentPayload{
			DepartmentReviewers: map[string]string{"dept-a": "rev-1"},
			UnitReviewers:       map[string]string{"unit-1": "rev-2"},
		},
	}
}

func TestRatingServiceCreateWiresReviewers(t *testing.T) {
	repo := newRatingRepoStub()
	svc, audit := newRatingService(repo, ratingUsers())

	rating, err := svc.Create(context.Background(), createRequest(), claims("author-1", models.RoleAuthor))
	require.NoError(t, err)
	require.Equal(t, models.RatingStatusCreated, rating.Status)
	require.Equal(t, "author-1", rating.AuthorID)
	require.Len(t, repo.participants, 2)
	for _, participant := range repo.participants {
		require.Equal(t, models.ParticipantStatusPending, participant.Status)
		require.Equal(t, "rev-1", *participant.DepartmentReviewerID)
		require.Equal(t, "rev-2", *participant.UnitReviewerID)
	}
	require.Len(t, audit.logs, 1)
}

func TestRatingServiceCreateRejectsSelfReview(t *testing.T) {
	repo := newRatingRepoStub()
	svc, _ := newRatingService(repo, ratingUsers())

	req := createRequest()
	req.Reviewers.DepartmentReviewers["dept-a"] = "staff-1"
	_, err := svc.Create(context.Background(), req, claims("author-1", models.RoleAuthor))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrSelfReview.Code, appErr.Code)
	require.Empty(t, repo.ratings)
}

// The reviewer payload is keyed by scope, so a department or unit can never
// carry two reviewers through the API: a second assignment for the same key
// replaces the first before the service sees it. The duplicate check the
// service still owns is the cross-level one, where a single user would hold
// both review roles in the same chain.
func TestRatingServiceCreateOneReviewerPerScope(t *testing.T) {
	repo := newRatingRepoStub()
	svc, _ := newRatingService(repo, ratingUsers())

	req := createRequest()
	req.Reviewers.DepartmentReviewers["dept-a"] = "rev-2"
	req.Reviewers.UnitReviewers["unit-1"] = "rev-2"
	_, err := svc.Create(context.Background(), req, claims("author-1", models.RoleAuthor))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrDuplicateReviewer.Code, appErr.Code)
	require.Empty(t, repo.ratings)

	// Reassigning the same scope key keeps exactly one reviewer for it.
	req = createRequest()
	req.Reviewers.DepartmentReviewers["dept-a"] = "rev-1"
	rating, err := svc.Create(context.Background(), req, claims("author-1", models.RoleAuthor))
	require.NoError(t, err)
	for _, participant := range repo.participants {
		if participant.RatingID != rating.ID {
			continue
		}
		require.Equal(t, "rev-1", *participant.DepartmentReviewerID)
	}
}

func TestRatingServiceCreateValidatesItems(t *testing.T) {
	repo := newRatingRepoStub()
	svc, _ := newRatingService(repo, ratingUsers())

	req := createRequest()
	req.Items = []dto.RatingItemPayload{{Name: "Delivery", MaxScore: 0}}
	_, err := svc.Create(context.Background(), req, claims("author-1", models.RoleAuthor))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	req = createRequest()
	req.RespondentIDs = nil
	_, err = svc.Create(context.Background(), req, claims("author-1", models.RoleAuthor))
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestRatingServiceCompleteTransitions(t *testing.T) {
	repo := newRatingRepoStub()
	svc, _ := newRatingService(repo, ratingUsers())
	author := claims("author-1", models.RoleAuthor)

	rating, err := svc.Create(context.Background(), createRequest(), author)
	require.NoError(t, err)

	completed, err := svc.Complete(context.Background(), rating.ID, author)
	require.NoError(t, err)
	require.Equal(t, models.RatingStatusPending, completed.Status)

	// Retry-safe: completing a pending rating is a no-op success.
	completed, err = svc.Complete(context.Background(), rating.ID, author)
	require.NoError(t, err)
	require.Equal(t, models.RatingStatusPending, completed.Status)

	repo.ratings[rating.ID].Status = models.RatingStatusClosed
	_, err = svc.Complete(context.Background(), rating.ID, author)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestRatingServiceFinalizeIsIdempotent(t *testing.T) {
	repo := newRatingRepoStub()
	svc, _ := newRatingService(repo, ratingUsers())
	author := claims("author-1", models.RoleAuthor)

	rating, err := svc.Create(context.Background(), createRequest(), author)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), rating.ID, author)
	require.NoError(t, err)

	// Finalize overrides even though no participant is approved yet.
	finalized, err := svc.Finalize(context.Background(), rating.ID, author)
	require.NoError(t, err)
	require.Equal(t, models.RatingStatusClosed, finalized.Status)

	again, err := svc.Finalize(context.Background(), rating.ID, author)
	require.NoError(t, err)
	require.Equal(t, models.RatingStatusClosed, again.Status)
}

// staleRatingStore serves reads from a snapshot taken before a concurrent
// status change, the way a finalize that raced a complete would see the world.
type staleRatingStore struct {
	*ratingRepoStub
	stale map[string]models.RatingStatus
}

func (s *staleRatingStore) GetByID(ctx context.Context, id string) (*models.Rating, error) {
	rating, err := s.ratingRepoStub.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if status, ok := s.stale[id]; ok {
		rating.Status = status
	}
	return rating, nil
}

func TestRatingServiceFinalizeWinsStatusRace(t *testing.T) {
	repo := newRatingRepoStub()
	svc, _ := newRatingService(repo, ratingUsers())
	author := claims("author-1", models.RoleAuthor)

	rating, err := svc.Create(context.Background(), createRequest(), author)
	require.NoError(t, err)

	// Finalize loaded the rating as CREATED, then a concurrent complete
	// moved it to PENDING before the close landed.
	repo.ratings[rating.ID].Status = models.RatingStatusPending
	stale := &staleRatingStore{
		ratingRepoStub: repo,
		stale:          map[string]models.RatingStatus{rating.ID: models.RatingStatusCreated},
	}
	raceSvc, _ := newRatingServiceWithStore(stale, ratingUsers(), repo)

	finalized, err := raceSvc.Finalize(context.Background(), rating.ID, author)
	require.NoError(t, err)
	require.Equal(t, models.RatingStatusClosed, finalized.Status)
	require.Equal(t, models.RatingStatusClosed, repo.ratings[rating.ID].Status)
}

func TestRatingServiceUpdateFrozenAfterComplete(t *testing.T) {
	repo := newRatingRepoStub()
	svc, _ := newRatingService(repo, ratingUsers())
	author := claims("author-1", models.RoleAuthor)

	rating, err := svc.Create(context.Background(), createRequest(), author)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), rating.ID, author)
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), rating.ID, dto.UpdateRatingRequest{
		Title: "Renamed",
		Type:  "quarterly",
		Items: []dto.RatingItemPayload{{Name: "Delivery", MaxScore: 20}},
	}, author)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}

func TestRatingServiceAuthorization(t *testing.T) {
	repo := newRatingRepoStub()
	svc, _ := newRatingService(repo, ratingUsers())

	rating, err := svc.Create(context.Background(), createRequest(), claims("author-1", models.RoleAuthor))
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), rating.ID, claims("author-2", models.RoleAuthor))
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	// Admins act on any rating.
	_, err = svc.Complete(context.Background(), rating.ID, claims("admin-1", models.RoleAdmin))
	require.NoError(t, err)
}

func TestRatingServiceDeleteOnlyWhileCreated(t *testing.T) {
	repo := newRatingRepoStub()
	svc, _ := newRatingService(repo, ratingUsers())
	author := claims("author-1", models.RoleAuthor)

	rating, err := svc.Create(context.Background(), createRequest(), author)
	require.NoError(t, err)
	_, err = svc.Complete(context.Background(), rating.ID, author)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), rating.ID, author)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
}
