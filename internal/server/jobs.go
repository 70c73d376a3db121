package server

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/invoiceworks/invoice-converter/constants"
	"github.com/invoiceworks/invoice-converter/internal/common"
	"github.com/invoiceworks/invoice-converter/internal/entity"
	"github.com/invoiceworks/invoice-converter/internal/pipeline"
	"github.com/invoiceworks/invoice-converter/internal/progress"
)

const maxUploadBytes = 64 << 20

// handleCreateJob accepts a multipart upload ("files" parts, optional
// "target_currency" field), persists the job, and starts the pipeline in the
// background. The response is the created job; progress streams separately.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, common.NewAppError("BAD_UPLOAD", "invalid multipart form", common.ErrInvalidInput))
		return
	}
	parts := r.MultipartForm.File["files"]
	if len(parts) == 0 {
		s.writeError(w, common.NewAppError("BAD_UPLOAD", "at least one file is required", common.ErrInvalidInput))
		return
	}
	for _, fh := range parts {
		ext := constants.NormalizeExt(filepath.Ext(fh.Filename))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			s.writeError(w, common.NewAppError("BAD_UPLOAD",
				fmt.Sprintf("unsupported file type: %s", fh.Filename), common.ErrInvalidInput))
			return
		}
	}

	now := time.Now().UTC()
	job := &entity.Job{
		ID:             uuid.New(),
		Status:         constants.JobStatusProcessing,
		Total:          len(parts),
		TargetCurrency: r.FormValue("target_currency"),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	jobDir := filepath.Join(s.cfg.Server.UploadDir, job.ID.String())
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		s.logger.Error("upload.dir.create_failed", "job_id", job.ID, "error", err)
		s.writeError(w, common.WrapError(err, "create upload directory"))
		return
	}

	if err := s.jobs.Create(r.Context(), job); err != nil {
		s.writeError(w, err)
		return
	}

	batch := &pipeline.Batch{JobID: job.ID, TargetCurrency: job.TargetCurrency}
	for _, fh := range parts {
		item, err := s.saveUpload(r.Context(), job.ID, jobDir, fh)
		if err != nil {
			// The job row already exists; leave it terminal, not stuck in
			// processing with no pipeline behind it.
			s.abortJob(r.Context(), job, len(parts), err)
			s.writeError(w, err)
			return
		}
		batch.Items = append(batch.Items, item)
	}

	go func() {
		result, err := s.runner.Run(context.Background(), job, batch)
		if err != nil {
			s.logger.Error("job.run.failed", "job_id", job.ID, "error", err)
			return
		}
		s.reports.Store(job.ID.String(), result.XLSX)
	}()

	s.logger.Info("job.created", "job_id", job.ID, "files", len(parts))
	s.writeJSON(w, http.StatusCreated, job)
}

func (s *Server) abortJob(ctx context.Context, job *entity.Job, total int, cause error) {
	if err := s.jobs.SetStatus(ctx, job.ID, constants.JobStatusError); err != nil {
		s.logger.Warn("job.abort.persist_failed", "job_id", job.ID, "error", err)
	}
	s.hub.Publish(progress.Event{
		JobID:       job.ID.String(),
		Status:      constants.JobStatusError,
		CurrentStep: constants.StepUploading,
		Total:       total,
		Percentage:  100,
		Message:     fmt.Sprintf("Upload failed: %v", cause),
	})
	s.logger.Error("job.upload.failed", "job_id", job.ID, "error", cause)
}

func (s *Server) saveUpload(ctx context.Context, jobID uuid.UUID, jobDir string, fh *multipart.FileHeader) (*pipeline.Item, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, common.WrapError(err, "open upload")
	}
	defer src.Close()

	fileID := uuid.New()
	destPath := filepath.Join(jobDir, fmt.Sprintf("%s_%s", fileID.String()[:8], filepath.Base(fh.Filename)))
	dest, err := os.Create(destPath)
	if err != nil {
		return nil, common.WrapError(err, "store upload")
	}
	defer dest.Close()
	if _, err := io.Copy(dest, src); err != nil {
		return nil, common.WrapError(err, "store upload")
	}

	rec := &entity.InvoiceFile{
		ID:         fileID,
		JobID:      jobID,
		Filename:   filepath.Base(fh.Filename),
		SourcePath: destPath,
		Status:     constants.FileStatusUploaded,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.files.Create(ctx, rec); err != nil {
		return nil, err
	}

	return &pipeline.Item{
		FileID:      fileID,
		Filename:    rec.Filename,
		SourcePath:  destPath,
		ContentType: constants.ContentTypeForExt(filepath.Ext(fh.Filename)),
		Status:      constants.FileStatusUploaded,
	}, nil
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, common.NewAppError("BAD_ID", "invalid job id", common.ErrInvalidInput))
		return
	}
	job, err := s.jobs.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		s.writeError(w, common.NewAppError("BAD_ID", "invalid job id", common.ErrInvalidInput))
		return
	}
	v, ok := s.reports.Load(id.String())
	if !ok {
		job, err := s.jobs.GetByID(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if job.Status == constants.JobStatusProcessing {
			s.writeJSON(w, http.StatusConflict, map[string]string{"error": "job still processing"})
			return
		}
		s.writeError(w, common.NewAppError("NO_REPORT", "report not available", common.ErrNotFound))
		return
	}

	xlsx := v.([]byte)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="invoices_%s.xlsx"`, id.String()[:8]))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(xlsx); err != nil {
		s.logger.Warn("report.write_failed", "job_id", id, "error", err)
	}
}
