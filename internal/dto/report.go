package dto

import "github.com/noah-isme/rating-flow-api/internal/models"

// ReportRequest captures POST /ratings/{id}/reports payload.
type ReportRequest struct {
	Format          models.ReportFormat `json:"format"`
	IncludeComments bool                `json:"includeComments"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
