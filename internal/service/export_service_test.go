package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/rating-flow-api/internal/models"
	"github.com/noah-isme/rating-flow-api/pkg/export"
	"github.com/noah-isme/rating-flow-api/pkg/storage"
)

type exportDataStub struct {
	rating       *models.Rating
	participants []*models.Participant
	approvals    map[string][]models.Approval
	users        map[string]models.User
}

func (s *exportDataStub) GetByID(ctx context.Context, id string) (*models.Rating, error) {
	if s.rating == nil || s.rating.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.rating, nil
}

func (s *exportDataStub) List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, error) {
	var out []models.Participant
	for _, p := range s.participants {
		if filter.RatingID == "" || p.RatingID == filter.RatingID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *exportDataStub) ListByParticipant(ctx context.Context, participantID string) ([]models.Approval, error) {
	return s.approvals[participantID], nil
}

func (s *exportDataStub) FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	return s.users, nil
}

type exportParticipantGetter struct {
	*exportDataStub
}

func (s exportParticipantGetter) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	for _, p := range s.participants {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func newExportDataStub() *exportDataStub {
	now := time.Now().UTC()
	return &exportDataStub{
		rating: &models.Rating{
			ID:       "rating-1",
			Title:    "Annual Review",
			AuthorID: "author-1",
			Status:   models.RatingStatusClosed,
			Items: []models.RatingItem{
				{ID: "item-1", Name: "Quality", MaxScore: 10, Position: 0},
				{ID: "item-2", Name: "Timeliness", MaxScore: 5, Position: 1},
			},
		},
		participants: []*models.Participant{
			{
				ID:           "part-1",
				RatingID:     "rating-1",
				RespondentID: "staff-1",
				Status:       models.ParticipantStatusApproved,
				Cycle:        1,
				Scores: []models.ItemScore{
					{ItemID: "item-1", Score: 8},
					{ItemID: "item-2", Score: 4},
				},
			},
		},
		approvals: map[string][]models.Approval{
			"part-1": {
				{ParticipantID: "part-1", Level: models.LevelAuthor, Status: models.ApprovalStatusApproved, Cycle: 1, DecidedAt: &now, Comments: models.CommentMap{"item-1": "solid"}},
			},
		},
		users: map[string]models.User{"staff-1": {ID: "staff-1", FullName: "Staff One"}},
	}
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage, *exportDataStub) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	data := newExportDataStub()
	svc := NewExportService(data, exportParticipantGetter{data}, data, data, store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store, data
}

func TestExportServiceGenerateCSV(t *testing.T) {
	svc, store, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-1",
		RatingID:  "rating-1",
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV, IncludeComments: true},
		CreatedBy: "author-1",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	require.Contains(t, result.URL, "/reports/download/")

	path := store.Path(result.RelativePath)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Staff One")
	assert.Contains(t, content, "Quality")
	assert.Contains(t, content, "AUTHOR")
	assert.Contains(t, content, "solid")
}

func TestExportServiceGeneratePDF(t *testing.T) {
	svc, store, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-2",
		RatingID:  "rating-1",
		Params:    models.ReportJobParams{Format: models.ReportFormatPDF},
		CreatedBy: "author-1",
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatPDF, result.Format)

	path := filepath.Clean(store.Path(result.RelativePath))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportServiceRefusesOpenRating(t *testing.T) {
	svc, _, data := newExportServiceForTest(t)
	data.rating.Status = models.RatingStatusPending
	job := &models.ReportJob{
		ID:       "job-3",
		RatingID: "rating-1",
		Params:   models.ReportJobParams{Format: models.ReportFormatCSV},
	}
	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not closed")
}
