package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/rating-flow-api/internal/models"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
	"github.com/noah-isme/rating-flow-api/pkg/storage"
)

func newDocumentServiceForTest(t *testing.T) *DocumentService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	return NewDocumentService(store, signer, zap.NewNop(), DocumentServiceConfig{
		MaxFileSize:  1024,
		AllowedMIMEs: []string{"application/pdf"},
	})
}

func pdfUpload(size int) DocumentUpload {
	payload := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("a"), size)...)
	return DocumentUpload{
		Filename: "evidence.pdf",
		Size:     int64(len(payload)),
		MimeType: "application/pdf",
		Content:  bytes.NewReader(payload),
	}
}

func TestDocumentServiceUploadAndDownload(t *testing.T) {
	svc := newDocumentServiceForTest(t)
	actor := claims("staff-1", models.RoleStaff)

	ref, err := svc.Upload(context.Background(), pdfUpload(100), actor)
	require.NoError(t, err)
	assert.Contains(t, ref.URL, "/documents/"+ref.ID+"/download?token=")

	token := ref.URL[strings.Index(ref.URL, "token=")+len("token="):]
	download, err := svc.Download(context.Background(), ref.ID, token, actor)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", download.MimeType)
	download.File.Close()
}

func TestDocumentServiceUploadRejectsOversize(t *testing.T) {
	svc := newDocumentServiceForTest(t)
	_, err := svc.Upload(context.Background(), pdfUpload(2048), claims("staff-1", models.RoleStaff))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDocumentServiceUploadRejectsMime(t *testing.T) {
	svc := newDocumentServiceForTest(t)
	upload := DocumentUpload{
		Filename: "notes.txt",
		Size:     4,
		MimeType: "text/plain",
		Content:  bytes.NewReader([]byte("text")),
	}
	_, err := svc.Upload(context.Background(), upload, claims("staff-1", models.RoleStaff))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDocumentServiceDownloadTokenMismatch(t *testing.T) {
	svc := newDocumentServiceForTest(t)
	actor := claims("staff-1", models.RoleStaff)
	ref, err := svc.Upload(context.Background(), pdfUpload(10), actor)
	require.NoError(t, err)
	token := ref.URL[strings.Index(ref.URL, "token=")+len("token="):]

	_, err = svc.Download(context.Background(), "other-doc", token, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
