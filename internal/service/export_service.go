package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/rating-flow-api/internal/models"
	"github.com/noah-isme/rating-flow-api/pkg/export"
	"github.com/noah-isme/rating-flow-api/pkg/storage"
)

type exportRatingStore interface {
	GetByID(ctx context.Context, id string) (*models.Rating, error)
}

type exportParticipantStore interface {
	List(ctx context.Context, filter models.ParticipantFilter) ([]models.Participant, error)
	GetByID(ctx context.Context, id string) (*models.Participant, error)
}

type exportApprovalLister interface {
	ListByParticipant(ctx context.Context, participantID string) ([]models.Approval, error)
}

type exportUserLookup interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService renders closed-rating result sheets and persists the files.
type ExportService struct {
	ratings      exportRatingStore
	participants exportParticipantStore
	approvals    exportApprovalLister
	users        exportUserLookup
	storage      fileStorage
	csv          csvRenderer
	pdf          pdfRenderer
	signer       *storage.SignedURLSigner
	logger       *zap.Logger
	cfg          ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(ratings exportRatingStore, participants exportParticipantStore, approvals exportApprovalLister, users exportUserLookup, fs fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		ratings:      ratings,
		participants: participants,
		approvals:    approvals,
		users:        users,
		storage:      fs,
		csv:          csv,
		pdf:          pdf,
		signer:       signer,
		logger:       logger,
		cfg:          cfg,
	}
}

// Generate builds the result sheet for a closed rating and stores the
// rendered export. Non-closed ratings are refused; results are not final
// until the rating closes.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	rating, err := s.ratings.GetByID(ctx, job.RatingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("rating %s not found", job.RatingID)
		}
		return nil, err
	}
	if rating.Status != models.RatingStatusClosed {
		return nil, fmt.Errorf("rating %s is not closed", rating.ID)
	}

	dataset, err := s.buildDataset(ctx, rating, job.Params)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, rating.Title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job, rating)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/reports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildDataset(ctx context.Context, rating *models.Rating, params models.ReportJobParams) (export.Dataset, error) {
	participants, err := s.participants.List(ctx, models.ParticipantFilter{RatingID: rating.ID})
	if err != nil {
		return export.Dataset{}, err
	}

	ids := make([]string, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.RespondentID)
	}
	names := map[string]models.User{}
	if s.users != nil && len(ids) > 0 {
		names, err = s.users.FindByIDs(ctx, ids)
		if err != nil {
			return export.Dataset{}, err
		}
	}

	items := append([]models.RatingItem(nil), rating.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].Position < items[j].Position })

	headers := []string{"Respondent", "Result"}
	for _, item := range items {
		headers = append(headers, item.Name)
	}
	headers = append(headers, "Total")
	if params.IncludeComments {
		headers = append(headers, "Review Level", "Decision", "Decided At", "Feedback")
	}

	rows := make([]map[string]string, 0, len(participants))
	for _, p := range participants {
		detail, err := s.participants.GetByID(ctx, p.ID)
		if err != nil {
			return export.Dataset{}, err
		}
		scores := make(map[string]float64, len(detail.Scores))
		for _, score := range detail.Scores {
			scores[score.ItemID] = score.Score
		}
		respondent := p.RespondentID
		if user, ok := names[p.RespondentID]; ok {
			respondent = user.FullName
		}
		row := map[string]string{
			"Respondent": respondent,
			"Result":     string(p.Status),
		}
		total := 0.0
		for _, item := range items {
			score, ok := scores[item.ID]
			if !ok {
				continue
			}
			row[item.Name] = fmt.Sprintf("%.2f", score)
			total += score
		}
		row["Total"] = fmt.Sprintf("%.2f", total)
		rows = append(rows, row)

		if params.IncludeComments {
			historyRows, err := s.buildHistoryRows(ctx, detail, respondent)
			if err != nil {
				return export.Dataset{}, err
			}
			rows = append(rows, historyRows...)
		}
	}

	return export.Dataset{Headers: headers, Rows: rows}, nil
}

func (s *ExportService) buildHistoryRows(ctx context.Context, participant *models.Participant, respondent string) ([]map[string]string, error) {
	approvals, err := s.approvals.ListByParticipant(ctx, participant.ID)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(approvals))
	for _, approval := range approvals {
		feedback := make([]string, 0, len(approval.Comments))
		for itemID, comment := range approval.Comments {
			if comment == "" {
				continue
			}
			feedback = append(feedback, fmt.Sprintf("%s: %s", itemID, comment))
		}
		sort.Strings(feedback)
		rows = append(rows, map[string]string{
			"Respondent":   respondent,
			"Review Level": string(approval.Level),
			"Decision":     string(approval.Status),
			"Decided At":   formatReportTime(approval.DecidedAt),
			"Feedback":     strings.Join(feedback, "; "),
		})
	}
	return rows, nil
}

func (s *ExportService) buildFilename(job *models.ReportJob, rating *models.Rating) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("rating_%s_%s.%s", sanitizeFilename(rating.Title), timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(strings.ToLower(raw))
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
