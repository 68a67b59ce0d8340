// handlers_jobs.go - Print job and payment handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/models"
	"github.com/printrelay/backend/internal/payment"
	"github.com/printrelay/backend/internal/session"
	"github.com/printrelay/backend/internal/storage"
	"github.com/printrelay/backend/internal/upload"
)

// JobHandlerImpl implements the JobHandler interface
type JobHandlerImpl struct {
	store      storage.Store
	sessionMgr *session.Manager
	jobMgr     *upload.Manager
	converter  upload.Converter
	storeErr   error
	log        *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(deps *Dependencies) JobHandler {
	return &JobHandlerImpl{
		store:      deps.Store,
		sessionMgr: deps.SessionMgr,
		jobMgr:     deps.JobMgr,
		converter:  deps.Converter,
		storeErr:   deps.StoreErr,
		log:        deps.Log,
	}
}

// HandleStartJob converts and sends the session's staged files
func (h *JobHandlerImpl) HandleStartJob(c echo.Context) error {
	sessionID := c.Param("sessionId")
	if !h.sessionMgr.Touch(sessionID) {
		return NewNotFoundError("session", sessionID)
	}
	sess, ok := h.sessionMgr.Get(sessionID)
	if !ok {
		return NewNotFoundError("session", sessionID)
	}

	var req startJobRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if h.storeErr != nil {
		if apiErr := FromError("document store unavailable", h.storeErr); apiErr.Status != http.StatusInternalServerError {
			return apiErr
		}
		return NewServiceUnavailableError("document store unavailable: " + h.storeErr.Error())
	}

	sender := sess.Sender
	if req.Sender != nil {
		sender = req.Sender.identity()
	}
	if sender.Name == "" {
		return NewValidationError("sender.name")
	}

	fileIDs := req.FileIDs
	if len(fileIDs) == 0 {
		fileIDs = sess.FileIDs
	}
	if len(fileIDs) == 0 {
		return NewBadRequestError("no files staged in this session", nil)
	}

	sources := make([]upload.SourceFile, 0, len(fileIDs))
	for _, id := range fileIDs {
		info, err := h.store.Get(id)
		if err != nil || info.SessionID != sessionID {
			return NewNotFoundError("file", id)
		}
		data, err := h.store.ReadBytes(id)
		if err != nil {
			return FromError("failed to read staged file", err)
		}
		sources = append(sources, upload.SourceFile{StagedID: id, Name: info.Name, Data: data})
	}

	job, err := h.jobMgr.Start(upload.Request{
		SessionID: sessionID,
		Files:     sources,
		Settings:  req.Settings,
		Sender:    sender,
		Converter: h.sessionMgr.CachingConverter(sessionID, h.converter),
	})
	if err != nil {
		return FromError("invalid job", err)
	}

	h.sessionMgr.RecordJob(sessionID, job.ID, len(sources))
	for _, id := range fileIDs {
		if _, err := h.store.Update(id, func(f *models.FileInfo) { f.Status = storage.StatusSent }); err != nil {
			h.log.Warn("failed to mark staged file sent",
				zap.String("session_id", sessionID),
				zap.String("file_id", id),
				zap.Error(err))
		}
	}
	h.log.Info("job submitted",
		zap.String("session_id", sessionID),
		zap.String("job_id", job.ID),
		zap.Int("files", len(sources)))

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

// HandleGetJob returns the current state of a job
func (h *JobHandlerImpl) HandleGetJob(c echo.Context) error {
	id := c.Param("jobId")
	job, ok := h.jobMgr.GetJob(id)
	if !ok {
		return NewNotFoundError("job", id)
	}
	return c.JSON(http.StatusOK, job)
}

// HandleCancelJob stops waiting for the receiver
func (h *JobHandlerImpl) HandleCancelJob(c echo.Context) error {
	id := c.Param("jobId")
	if err := h.jobMgr.Cancel(id); err != nil {
		return NewNotFoundError("job", id)
	}
	job, _ := h.jobMgr.GetJob(id)
	return c.JSON(http.StatusAccepted, job)
}

// HandleGetPayment returns the receiver's payment record, or the local
// estimate while it is outstanding
func (h *JobHandlerImpl) HandleGetPayment(c echo.Context) error {
	job, rec, err := h.paymentFor(c.Param("jobId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, paymentResponse{
		JobID:  job.ID,
		Status: job.Status,
		Final:  job.Status.Terminal(),
		Record: rec,
		URI:    job.PaymentURI,
	})
}

// HandleGetPaymentQR renders the payment link as a PNG QR code
func (h *JobHandlerImpl) HandleGetPaymentQR(c echo.Context) error {
	job, _, err := h.paymentFor(c.Param("jobId"))
	if err != nil {
		return err
	}
	if job.PaymentURI == "" {
		return NewConflictError("no payment link for this job; the payee is not configured")
	}

	size := 256
	if s := c.QueryParam("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 64 || n > 1024 {
			return NewBadRequestError("size must be between 64 and 1024", err)
		}
		size = n
	}

	png, err := payment.QRCode(job.PaymentURI, size)
	if err != nil {
		return NewInternalError("failed to render QR code", err)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}

func (h *JobHandlerImpl) paymentFor(id string) (*upload.Job, *models.PaymentRecord, error) {
	job, ok := h.jobMgr.GetJob(id)
	if !ok {
		return nil, nil, NewNotFoundError("job", id)
	}
	rec := job.Payment
	if rec == nil {
		rec = job.Estimate
	}
	if rec == nil {
		return nil, nil, NewConflictError("payment details are not available yet")
	}
	return job, rec, nil
}

type startJobRequest struct {
	FileIDs  []string           `json:"fileIds"`
	Settings models.JobSettings `json:"settings"`
	Sender   *senderRequest     `json:"sender,omitempty"`
}

type paymentResponse struct {
	JobID  string                `json:"jobId"`
	Status upload.Status         `json:"status"`
	Final  bool                  `json:"final"`
	Record *models.PaymentRecord `json:"record"`
	URI    string                `json:"uri,omitempty"`
}
