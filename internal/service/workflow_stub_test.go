package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/rating-flow-api/internal/models"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
)

// workflowStore is an in-memory double for the rating, participant and
// approval repositories, so chain scenarios can run end to end.
type workflowStore struct {
	ratings      map[string]*models.Rating
	participants map[string]*models.Participant
	approvals    []*models.Approval
}

func newWorkflowStore() *workflowStore {
	return &workflowStore{
		ratings:      make(map[string]*models.Rating),
		participants: make(map[string]*models.Participant),
	}
}

func (w *workflowStore) addRating(rating *models.Rating) {
	w.ratings[rating.ID] = rating
}

func (w *workflowStore) addParticipant(participant *models.Participant) {
	w.participants[participant.ID] = participant
}

func (w *workflowStore) GetByID(ctx context.Context, id string) (*models.Rating, error) {
	if rating, ok := w.ratings[id]; ok {
		copy := *rating
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (w *workflowStore) CloseIfFullyApproved(ctx context.Context, id string) (bool, error) {
	rating, ok := w.ratings[id]
	if !ok || rating.Status != models.RatingStatusPending {
		return false, nil
	}
	for _, participant := range w.participants {
		if participant.RatingID == id && participant.Status != models.ParticipantStatusApproved {
			return false, nil
		}
	}
	rating.Status = models.RatingStatusClosed
	return true, nil
}

// participantStore is a separate type so the rating-shaped GetByID above and
// the participant-shaped one below can coexist.
type participantStoreStub struct {
	store *workflowStore
}

func (p *participantStoreStub) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	if participant, ok := p.store.participants[id]; ok {
		copy := *participant
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (p *participantStoreStub) List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, error) {
	var result []models.Participant
	for _, participant := range p.store.participants {
		if filter.RatingID != "" && participant.RatingID != filter.RatingID {
			continue
		}
		if filter.RespondentID != "" && participant.RespondentID != filter.RespondentID {
			continue
		}
		result = append(result, *participant)
	}
	return result, nil
}

func (p *participantStoreStub) SubmitFill(ctx context.Context, participant *models.Participant, expected []models.ParticipantStatus) (bool, error) {
	stored, ok := p.store.participants[participant.ID]
	if !ok {
		return false, sql.ErrNoRows
	}
	allowed := false
	for _, status := range expected {
		if stored.Status == status {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}
	stored.Status = models.ParticipantStatusFilled
	stored.Cycle++
	stored.Scores = participant.Scores
	stored.Documents = participant.Documents
	return true, nil
}

func (p *participantStoreStub) TransitionStatus(ctx context.Context, id string, from, to models.ParticipantStatus) (bool, error) {
	stored, ok := p.store.participants[id]
	if !ok || stored.Status != from {
		return false, nil
	}
	stored.Status = to
	return true, nil
}

func (p *participantStoreStub) ListPendingForRespondent(ctx context.Context, respondentID string) ([]models.Participant, error) {
	var result []models.Participant
	for _, participant := range p.store.participants {
		if participant.RespondentID != respondentID {
			continue
		}
		if participant.Status != models.ParticipantStatusPending && participant.Status != models.ParticipantStatusRevision {
			continue
		}
		rating, ok := p.store.ratings[participant.RatingID]
		if !ok || rating.Status != models.RatingStatusPending {
			continue
		}
		result = append(result, *participant)
	}
	return result, nil
}

type approvalStoreStub struct {
	store *workflowStore
}

func (a *approvalStoreStub) OpenPending(ctx context.Context, participantID string, level models.ReviewLevel, cycle int) error {
	for _, approval := range a.store.approvals {
		if approval.ParticipantID == participantID && approval.Level == level && approval.Cycle == cycle {
			approval.Status = models.ApprovalStatusPending
			approval.Comments = models.CommentMap{}
			approval.ReviewerID = nil
			approval.DecidedAt = nil
			return nil
		}
	}
	a.store.approvals = append(a.store.approvals, &models.Approval{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Level:         level,
		Status:        models.ApprovalStatusPending,
		Comments:      models.CommentMap{},
		Cycle:         cycle,
	})
	return nil
}

func (a *approvalStoreStub) Decide(ctx context.Context, participantID string, level models.ReviewLevel, cycle int, status models.ApprovalStatus, comments models.CommentMap, reviewerID string) (bool, error) {
	for _, approval := range a.store.approvals {
		if approval.ParticipantID == participantID && approval.Level == level && approval.Cycle == cycle && approval.Status == models.ApprovalStatusPending {
			now := time.Now().UTC()
			approval.Status = status
			approval.Comments = comments
			approval.ReviewerID = &reviewerID
			approval.DecidedAt = &now
			return true, nil
		}
	}
	return false, nil
}

func (a *approvalStoreStub) ListByParticipant(ctx context.Context, participantID string) ([]models.Approval, error) {
	var result []models.Approval
	for _, approval := range a.store.approvals {
		if approval.ParticipantID == participantID {
			result = append(result, *approval)
		}
	}
	return result, nil
}

func (a *approvalStoreStub) ListApprovedLevels(ctx context.Context, participantID string) ([]models.ReviewLevel, error) {
	var result []models.ReviewLevel
	for _, approval := range a.store.approvals {
		if approval.ParticipantID == participantID && approval.Status == models.ApprovalStatusApproved {
			result = append(result, approval.Level)
		}
	}
	return result, nil
}

func (a *approvalStoreStub) ClosePending(ctx context.Context, participantID string, before int) error {
	kept := a.store.approvals[:0]
	for _, approval := range a.store.approvals {
		if approval.ParticipantID == participantID && approval.Status == models.ApprovalStatusPending && approval.Cycle < before {
			continue
		}
		kept = append(kept, approval)
	}
	a.store.approvals = kept
	return nil
}

func (a *approvalStoreStub) ListPendingForReviewer(ctx context.Context, reviewerID string) ([]models.PendingAction, error) {
	var result []models.PendingAction
	for _, approval := range a.store.approvals {
		if approval.Status != models.ApprovalStatusPending {
			continue
		}
		participant, ok := a.store.participants[approval.ParticipantID]
		if !ok || participant.Status != models.ParticipantStatusFilled || approval.Cycle != participant.Cycle {
			continue
		}
		rating, ok := a.store.ratings[participant.RatingID]
		if !ok || rating.Status != models.RatingStatusPending {
			continue
		}
		switch approval.Level {
		case models.LevelDepartment:
			if participant.DepartmentReviewerID != nil && *participant.DepartmentReviewerID == reviewerID {
				result = append(result, models.PendingAction{RatingID: rating.ID, ParticipantID: participant.ID, Role: models.ActionRoleDepartmentReviewer})
			}
		case models.LevelUnit:
			if participant.UnitReviewerID != nil && *participant.UnitReviewerID == reviewerID {
				result = append(result, models.PendingAction{RatingID: rating.ID, ParticipantID: participant.ID, Role: models.ActionRoleUnitReviewer})
			}
		case models.LevelAuthor:
			if rating.AuthorID == reviewerID {
				result = append(result, models.PendingAction{RatingID: rating.ID, ParticipantID: participant.ID, Role: models.ActionRoleAuthor})
			}
		}
	}
	return result, nil
}

type cacheStub struct {
	entries map[string][]byte
	hits    int
}

func newCacheStub() *cacheStub {
	return &cacheStub{entries: make(map[string][]byte)}
}

func (c *cacheStub) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	c.hits++
	return json.Unmarshal(raw, dest)
}

func (c *cacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}

func (c *cacheStub) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}
