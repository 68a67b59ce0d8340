package upload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/archive"
	"github.com/printrelay/backend/internal/convert"
	"github.com/printrelay/backend/internal/faults"
	"github.com/printrelay/backend/internal/logging"
	"github.com/printrelay/backend/internal/metrics"
	"github.com/printrelay/backend/internal/models"
	"github.com/printrelay/backend/internal/payment"
	"github.com/printrelay/backend/internal/settlement"
)

// Status represents the job processing status.
type Status string

const (
	StatusConverting      Status = "converting"
	StatusUploading       Status = "uploading"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusSettled         Status = "settled"
	StatusTimedOut        Status = "timed_out"
	StatusCancelled       Status = "cancelled"
	StatusError           Status = "error"
)

// Terminal reports whether the job has finished.
func (s Status) Terminal() bool {
	switch s {
	case StatusSettled, StatusTimedOut, StatusCancelled, StatusError:
		return true
	}
	return false
}

var ErrJobNotFound = errors.New("job not found")

// SourceFile is a staged upload handed to a job.
type SourceFile struct {
	StagedID string
	Name     string
	Data     []byte
}

// JobFile describes one file of a job after conversion and upload.
type JobFile struct {
	StagedID    string   `json:"stagedId,omitempty"`
	FileID      string   `json:"fileId,omitempty"`
	Name        string   `json:"name"`
	Method      string   `json:"method,omitempty"`
	PageCount   int      `json:"pageCount"`
	Placeholder bool     `json:"placeholder,omitempty"`
	SizeBytes   int      `json:"sizeBytes"`
	Fragments   int      `json:"fragments"`
	Checksum    string   `json:"sha256,omitempty"`
	Notes       []string `json:"notes,omitempty"`
	Uploaded    bool     `json:"uploaded"`
	Error       string   `json:"error,omitempty"`
}

// Job represents an async print job.
type Job struct {
	ID         string                `json:"id"`
	SessionID  string                `json:"sessionId,omitempty"`
	Files      []JobFile             `json:"files"`
	Settings   models.JobSettings    `json:"settings"`
	Sender     models.SenderIdentity `json:"sender"`
	Status     Status                `json:"status"`
	Progress   float64               `json:"progress"`
	Stage      string                `json:"stage"`
	Estimate   *models.PaymentRecord `json:"estimate,omitempty"`
	Payment    *models.PaymentRecord `json:"payment,omitempty"`
	PaymentURI string                `json:"paymentUri,omitempty"`
	Warnings   []string              `json:"warnings,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
	// CompletedAt is set once the job reaches a terminal status.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (j *Job) clone() *Job {
	cp := *j
	cp.Files = append([]JobFile(nil), j.Files...)
	cp.Warnings = append([]string(nil), j.Warnings...)
	if j.Estimate != nil {
		e := *j.Estimate
		cp.Estimate = &e
	}
	if j.Payment != nil {
		p := *j.Payment
		cp.Payment = &p
	}
	return &cp
}

// Event types pushed to subscribers.
const (
	EventProgress = "progress"
	EventEstimate = "estimate"
	EventStatus   = "status"
)

// Event is a snapshot of the job after a change.
type Event struct {
	Type string `json:"type"`
	Job  *Job   `json:"job"`
}

// Request describes a job to start.
type Request struct {
	SessionID string
	Files     []SourceFile
	Settings  models.JobSettings
	Sender    models.SenderIdentity
	// Converter overrides the manager's converter, e.g. with a session cache.
	Converter Converter
}

// Converter turns an upload into a printable document. It never fails.
type Converter interface {
	Convert(ctx context.Context, filename string, data []byte) *convert.Document
}

// Deps wires a Manager.
type Deps struct {
	Uploader      *Orchestrator
	Poller        *settlement.Poller
	Estimator     *settlement.Estimator
	Converter     Converter
	Archive       archive.Sink
	ArchivePrefix string
	Log           *zap.Logger
	Metrics       *metrics.Metrics
}

type jobEntry struct {
	job    *Job
	cancel context.CancelFunc
	subs   map[int]chan Event
}

// Manager runs print jobs in the background: convert, upload, estimate and
// wait for the receiver's payment record.
type Manager struct {
	jobs    map[string]*jobEntry
	mu      sync.RWMutex
	nextSub int
	deps    Deps
	log     *zap.Logger
	now     func() time.Time
}

// NewManager creates a new job manager.
func NewManager(d Deps) *Manager {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Archive == nil {
		d.Archive = archive.NopSink{}
	}
	return &Manager{
		jobs: make(map[string]*jobEntry),
		deps: d,
		log:  d.Log,
		now:  time.Now,
	}
}

// Start validates req and begins async processing of a job.
func (m *Manager) Start(req Request) (*Job, error) {
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}
	settings := req.Settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrInvalidInput, err)
	}

	job := &Job{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		Settings:  settings,
		Sender:    req.Sender,
		Status:    StatusConverting,
		Stage:     "converting documents",
		CreatedAt: m.now(),
	}
	for _, f := range req.Files {
		job.Files = append(job.Files, JobFile{StagedID: f.StagedID, Name: f.Name, SizeBytes: len(f.Data)})
	}

	// The job outlives the request that started it.
	ctx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.jobs[job.ID] = &jobEntry{job: job, cancel: cancel, subs: make(map[int]chan Event)}
	m.mu.Unlock()

	conv := req.Converter
	if conv == nil {
		conv = m.deps.Converter
	}

	snapshot := job.clone()
	go m.processJob(ctx, job, req.Files, conv)

	return snapshot, nil
}

// GetJob retrieves a snapshot of a job by ID.
func (m *Manager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return e.job.clone(), true
}

// Cancel stops a running job. Cancelling a finished job is a no-op.
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}
	e.cancel()
	return nil
}

// Subscribe returns a channel of job events. The channel is closed after the
// terminal event. Slow subscribers miss intermediate progress events.
func (m *Manager) Subscribe(id string) (<-chan Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok {
		return nil, nil, ErrJobNotFound
	}

	ch := make(chan Event, 16)
	if e.job.Status.Terminal() {
		ch <- Event{Type: EventStatus, Job: e.job.clone()}
		close(ch)
		return ch, func() {}, nil
	}

	m.nextSub++
	subID := m.nextSub
	e.subs[subID] = ch
	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := e.subs[subID]; ok {
			delete(e.subs, subID)
			close(c)
		}
	}
	return ch, unsubscribe, nil
}

// Wait blocks until the job finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (*Job, error) {
	events, unsubscribe, err := m.Subscribe(id)
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, open := <-events:
			if !open {
				job, _ := m.GetJob(id)
				return job, nil
			}
		}
	}
}

// processJob handles the actual async processing.
func (m *Manager) processJob(ctx context.Context, job *Job, sources []SourceFile, conv Converter) {
	defer m.cancelEntry(job.ID)
	short := logging.ShortID(job.ID)
	log := m.log.With(zap.String("job_id", short))
	log.Info("job started", zap.Int("files", len(sources)), zap.String("sender", job.Sender.Name))

	// Stage 1: convert
	files := make([]models.LogicalFile, len(sources))
	for i, src := range sources {
		if ctx.Err() != nil {
			m.markJobCancelled(job)
			return
		}
		doc := conv.Convert(ctx, src.Name, src.Data)
		files[i] = models.LogicalFile{
			JobID:       job.ID,
			DisplayName: src.Name,
			Payload:     doc.Data,
			PageCount:   doc.PageCount,
			Method:      doc.Method,
			Sender:      job.Sender,
		}
		m.update(job, EventProgress, func(j *Job) {
			f := &j.Files[i]
			f.Method = doc.Method
			f.PageCount = doc.PageCount
			f.Placeholder = doc.Placeholder
			f.Notes = doc.Notes
			if doc.Placeholder {
				j.Warnings = append(j.Warnings, fmt.Sprintf("%s could not be converted; a placeholder page was sent", src.Name))
			}
			j.Progress = 20 * float64(i+1) / float64(len(sources))
		})
	}

	// Stage 2: upload fragments and manifests
	m.update(job, EventStatus, func(j *Job) {
		j.Status = StatusUploading
		j.Stage = "uploading"
	})
	result, err := m.deps.Uploader.Upload(ctx, files, job.Settings, func(p Progress) {
		m.update(job, EventProgress, func(j *Job) {
			j.Progress = 20 + 70*p.Fraction()
		})
	})
	if ctx.Err() != nil {
		m.markJobCancelled(job)
		return
	}
	var uploadErr *UploadError
	if err != nil && !errors.As(err, &uploadErr) {
		m.markJobError(job, fmt.Sprintf("upload failed: %v", err))
		return
	}
	m.update(job, EventProgress, func(j *Job) {
		for i, fr := range result.Files {
			f := &j.Files[i]
			f.FileID = fr.FileID
			f.Fragments = fr.FragmentCount
			f.Checksum = fr.Checksum
			f.Uploaded = fr.OK()
			if fr.Err != nil {
				f.Error = fr.Err.Error()
				j.Warnings = append(j.Warnings, fmt.Sprintf("%s was not sent: %v", fr.Name, fr.Err))
			}
		}
		j.Progress = 90
	})
	uploaded := result.Uploaded()
	if len(uploaded) == 0 {
		m.markJobError(job, err.Error())
		return
	}

	// Stage 3: archive copies, best effort
	pages := make([]int, 0, len(uploaded))
	for i, fr := range result.Files {
		if !fr.OK() {
			continue
		}
		pages = append(pages, fr.PageCount)
		m.archive(ctx, log, job, fr, files[i].Payload)
	}

	// Stage 4: estimate and wait for the receiver
	estimate := m.deps.Estimator.Estimate(settlement.TotalPages(pages...), job.Settings)
	poller := m.deps.Poller.WithHooks(func(rec models.PaymentRecord) {
		uri := m.paymentURI(log, job.ID, rec)
		m.update(job, EventEstimate, func(j *Job) {
			j.Status = StatusAwaitingPayment
			j.Stage = "waiting for receiver"
			j.Estimate = &rec
			j.PaymentURI = uri
		})
	}, nil)

	out := <-poller.Start(ctx, uploaded, estimate)

	uri := m.paymentURI(log, job.ID, out.Record)
	m.finish(job, func(j *Job) {
		rec := out.Record
		j.Payment = &rec
		if uri != "" {
			j.PaymentURI = uri
		}
		switch out.State {
		case settlement.StateSettled:
			j.Status = StatusSettled
			j.Stage = "payment details received"
		case settlement.StateTimedOut:
			j.Status = StatusTimedOut
			j.Stage = "receiver did not respond; estimate is final"
		default:
			j.Status = StatusCancelled
			j.Stage = "cancelled"
		}
	})
	log.Info("job finished", zap.String("status", string(job.Status)), zap.Float64("amount", out.Record.Amount))
}

func (m *Manager) archive(ctx context.Context, log *zap.Logger, job *Job, fr FileResult, data []byte) {
	if _, nop := m.deps.Archive.(archive.NopSink); nop {
		return
	}
	obj := archive.Object{
		Key:         archive.ObjectKey(m.deps.ArchivePrefix, job.ID, fr.FileID),
		Data:        data,
		ContentType: "application/pdf",
		Metadata: map[string]string{
			"name":      fr.Name,
			"sender":    job.Sender.Name,
			"sender-id": job.Sender.ID,
			"sha256":    fr.Checksum,
		},
	}
	err := m.deps.Archive.Put(ctx, obj)
	m.deps.Metrics.Archive(err == nil)
	if err != nil {
		log.Warn("archive write failed", zap.String("file_id", fr.FileID), zap.String("key", obj.Key), zap.Error(err))
		m.update(job, EventProgress, func(j *Job) {
			j.Warnings = append(j.Warnings, fmt.Sprintf("archive copy of %s failed", fr.Name))
		})
	}
}

func (m *Manager) paymentURI(log *zap.Logger, jobID string, rec models.PaymentRecord) string {
	uri, err := payment.URIFor(rec, "print job "+logging.ShortID(jobID))
	if err != nil {
		log.Debug("no payment link", zap.Error(err))
		return ""
	}
	return uri
}

// update mutates the job under the lock and notifies subscribers.
func (m *Manager) update(job *Job, eventType string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn(job)
	m.publishLocked(job, Event{Type: eventType, Job: job.clone()})
}

// finish applies fn, stamps CompletedAt and closes every subscription.
func (m *Manager) finish(job *Job, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn(job)
	now := m.now()
	job.CompletedAt = &now
	if job.Status == StatusSettled || job.Status == StatusTimedOut {
		job.Progress = 100
	}
	m.publishLocked(job, Event{Type: EventStatus, Job: job.clone()})

	if e, ok := m.jobs[job.ID]; ok {
		for id, ch := range e.subs {
			close(ch)
			delete(e.subs, id)
		}
	}
}

func (m *Manager) publishLocked(job *Job, ev Event) {
	e, ok := m.jobs[job.ID]
	if !ok {
		return
	}
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Manager) cancelEntry(id string) {
	m.mu.RLock()
	e, ok := m.jobs[id]
	m.mu.RUnlock()
	if ok {
		e.cancel()
	}
}

// markJobCancelled marks the job as cancelled (thread-safe).
func (m *Manager) markJobCancelled(job *Job) {
	m.finish(job, func(j *Job) {
		j.Status = StatusCancelled
		j.Stage = "cancelled"
	})
	m.log.Info("job cancelled", zap.String("job_id", logging.ShortID(job.ID)))
}

// markJobError marks job as failed (thread-safe).
func (m *Manager) markJobError(job *Job, errMsg string) {
	m.finish(job, func(j *Job) {
		j.Status = StatusError
		j.Error = errMsg
	})
	m.log.Error("job failed", zap.String("job_id", logging.ShortID(job.ID)), zap.String("error", errMsg))
}

// CleanupOldJobs removes finished jobs older than the specified duration.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for id, e := range m.jobs {
		if e.job.Status.Terminal() && e.job.CompletedAt != nil && e.job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}
