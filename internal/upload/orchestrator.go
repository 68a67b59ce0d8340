package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/chunker"
	"github.com/printrelay/backend/internal/docstore"
	"github.com/printrelay/backend/internal/logging"
	"github.com/printrelay/backend/internal/manifest"
	"github.com/printrelay/backend/internal/metrics"
	"github.com/printrelay/backend/internal/models"
	"github.com/printrelay/backend/internal/retry"
)

var (
	// ErrNoFiles is returned when Upload is called without files.
	ErrNoFiles = errors.New("no files to upload")
	// ErrEmptyPayload marks a file that has nothing to encode.
	ErrEmptyPayload = errors.New("file payload is empty")
)

// Options configures the Orchestrator.
type Options struct {
	Collection string
	// ChunkSize is the fragment length in base64 characters.
	ChunkSize int
	// BatchSize bounds fragments per BatchPut. Values <= 1 write fragments
	// one Put at a time.
	BatchSize int
	// PreliminaryManifest writes the manifest with fragment_count 0 before
	// any fragment.
	PreliminaryManifest bool
	Retry               retry.Policy
}

// DefaultOptions keeps a fragment plus its envelope under a 1 MiB document.
func DefaultOptions() Options {
	return Options{
		Collection:          "print_jobs",
		ChunkSize:           700_000,
		BatchSize:           8,
		PreliminaryManifest: true,
		Retry:               retry.DefaultPolicy(),
	}
}

// Progress is reported after every successful fragment write.
type Progress struct {
	FileID   string
	FileName string
	Done     int
	Total    int
}

// Fraction of all fragments of the call written so far.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Done) / float64(p.Total)
}

// ProgressFunc receives Progress values. It must not block.
type ProgressFunc func(Progress)

// FileResult is the outcome of one logical file.
type FileResult struct {
	FileID        string `json:"fileId"`
	Name          string `json:"name"`
	Checksum      string `json:"sha256"`
	SizeBytes     int    `json:"sizeBytes"`
	FragmentCount int    `json:"fragmentCount"`
	PageCount     int    `json:"pageCount"`
	Err           error  `json:"-"`
}

// OK reports whether the final manifest was written.
func (r FileResult) OK() bool { return r.Err == nil }

// Result lists every file of an Upload call in input order.
type Result struct {
	JobID string
	Files []FileResult
}

// Uploaded returns the ids of files whose final manifest was written.
func (r *Result) Uploaded() []string {
	var ids []string
	for _, f := range r.Files {
		if f.OK() {
			ids = append(ids, f.FileID)
		}
	}
	return ids
}

// UploadError lists the files that failed. Other files of the call were
// uploaded. Fragments already written for a failed file are left in place.
type UploadError struct {
	Failed []FileResult
	Total  int
}

func (e *UploadError) Error() string {
	parts := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		parts[i] = fmt.Sprintf("%s: %v", f.Name, f.Err)
	}
	return fmt.Sprintf("upload failed for %d of %d files: %s", len(e.Failed), e.Total, strings.Join(parts, "; "))
}

func (e *UploadError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}

// Orchestrator writes logical files into the document store as fragments
// plus a manifest.
type Orchestrator struct {
	store   docstore.Gateway
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics

	newID func() string
	now   func() time.Time
}

// NewOrchestrator returns an Orchestrator. log and m may be nil.
func NewOrchestrator(store docstore.Gateway, opts Options, log *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Collection == "" {
		opts.Collection = DefaultOptions().Collection
	}
	return &Orchestrator{
		store:   store,
		opts:    opts,
		log:     log,
		metrics: m,
		newID:   func() string { return uuid.New().String() },
		now:     time.Now,
	}
}

// Collection is where fragments and manifests are written.
func (o *Orchestrator) Collection() string { return o.opts.Collection }

type preparedFile struct {
	file      models.LogicalFile
	fragments []models.Fragment
	err       error
}

// Upload writes each file in order. A failing file does not stop the others;
// when any file fails the returned error is an *UploadError and the Result
// still describes every file.
func (o *Orchestrator) Upload(ctx context.Context, files []models.LogicalFile, settings models.JobSettings, progress ProgressFunc) (*Result, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	jobID := files[0].JobID
	if jobID == "" {
		jobID = o.newID()
	}

	prepared := make([]preparedFile, len(files))
	total := 0
	for i, f := range files {
		prepared[i] = o.prepare(jobID, f, settings)
		total += len(prepared[i].fragments)
	}

	result := &Result{JobID: jobID, Files: make([]FileResult, len(files))}
	var failed []FileResult
	done := 0

	for i, p := range prepared {
		fr := FileResult{
			FileID:        p.file.FileID,
			Name:          p.file.DisplayName,
			Checksum:      p.file.Checksum,
			SizeBytes:     len(p.file.Payload),
			FragmentCount: len(p.fragments),
			PageCount:     p.file.PageCount,
			Err:           p.err,
		}

		if fr.Err == nil {
			if err := ctx.Err(); err != nil {
				fr.Err = err
			} else {
				fr.Err = o.uploadFile(ctx, p, func(n int) {
					done += n
					progress(Progress{FileID: p.file.FileID, FileName: p.file.DisplayName, Done: done, Total: total})
				})
			}
		}

		if fr.Err != nil {
			// The file's unwritten fragments no longer count towards progress.
			total -= len(p.fragments) - fragmentsWritten(fr.Err)
			o.log.Warn("file upload failed",
				zap.String("job_id", logging.ShortID(jobID)),
				zap.String("file_id", p.file.FileID),
				zap.String("file", p.file.DisplayName),
				zap.Error(fr.Err))
			failed = append(failed, fr)
		} else {
			o.log.Info("file uploaded",
				zap.String("job_id", logging.ShortID(jobID)),
				zap.String("file_id", p.file.FileID),
				zap.String("file", p.file.DisplayName),
				zap.Int("fragments", len(p.fragments)))
		}
		o.metrics.FileUploaded(fr.Err == nil)
		result.Files[i] = fr
	}

	if len(failed) > 0 {
		return result, &UploadError{Failed: failed, Total: len(files)}
	}
	return result, nil
}

func (o *Orchestrator) prepare(jobID string, f models.LogicalFile, settings models.JobSettings) preparedFile {
	f.FileID = o.newID()
	f.JobID = jobID
	f.Settings = settings
	f.ChunkSize = o.opts.ChunkSize
	if f.CreatedAt.IsZero() {
		f.CreatedAt = o.now()
	}

	sum := sha256.Sum256(f.Payload)
	f.Checksum = hex.EncodeToString(sum[:])

	if len(f.Payload) == 0 {
		return preparedFile{file: f, err: fmt.Errorf("encode %s: %w", f.DisplayName, ErrEmptyPayload)}
	}
	frags, err := chunker.Fragments(f.FileID, chunker.Encode(f.Payload), o.opts.ChunkSize)
	if err != nil {
		return preparedFile{file: f, err: fmt.Errorf("encode %s: %w", f.DisplayName, err)}
	}
	f.FragmentCount = len(frags)
	return preparedFile{file: f, fragments: frags}
}

// writeError records how many fragments were stored before a failure.
type writeError struct {
	written int
	err     error
}

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

func fragmentsWritten(err error) int {
	var we *writeError
	if errors.As(err, &we) {
		return we.written
	}
	return 0
}

func (o *Orchestrator) uploadFile(ctx context.Context, p preparedFile, report func(n int)) error {
	f := p.file
	key := manifest.Key(f.FileID)

	if o.opts.PreliminaryManifest {
		if err := o.put(ctx, "preliminary_manifest", f.FileID, key, manifest.Build(f, 0)); err != nil {
			return fmt.Errorf("write preliminary manifest: %w", err)
		}
	}

	written := 0
	if o.opts.BatchSize <= 1 {
		for _, frag := range p.fragments {
			if err := o.put(ctx, "fragment", f.FileID, chunker.FragmentKey(f.FileID, frag.Index), chunker.FragmentFields(frag)); err != nil {
				return &writeError{written: written, err: fmt.Errorf("write fragment %d: %w", frag.Index, err)}
			}
			written++
			o.metrics.FragmentsWritten(1)
			report(1)
		}
	} else {
		size := min(o.opts.BatchSize, docstore.MaxBatch)
		for start := 0; start < len(p.fragments); start += size {
			end := min(start+size, len(p.fragments))
			docs := make([]docstore.Document, 0, end-start)
			for _, frag := range p.fragments[start:end] {
				docs = append(docs, docstore.Document{
					ID:     chunker.FragmentKey(f.FileID, frag.Index),
					Fields: chunker.FragmentFields(frag),
				})
			}
			err := retry.Do(ctx, o.policy("fragment_batch", f.FileID), func(ctx context.Context) error {
				return o.store.BatchPut(ctx, o.opts.Collection, docs)
			})
			if err != nil {
				return &writeError{written: written, err: fmt.Errorf("write fragments %d-%d: %w", start, end-1, err)}
			}
			written += len(docs)
			o.metrics.FragmentsWritten(len(docs))
			report(len(docs))
		}
	}

	if err := o.put(ctx, "manifest", f.FileID, key, manifest.Build(f, len(p.fragments))); err != nil {
		return &writeError{written: written, err: fmt.Errorf("write manifest: %w", err)}
	}
	return nil
}

func (o *Orchestrator) put(ctx context.Context, op, fileID, id string, fields map[string]any) error {
	return retry.Do(ctx, o.policy(op, fileID), func(ctx context.Context) error {
		return o.store.Put(ctx, o.opts.Collection, id, fields)
	})
}

func (o *Orchestrator) policy(op, fileID string) retry.Policy {
	p := o.opts.Retry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		o.metrics.Retry(op)
		o.log.Debug("retrying store write",
			zap.String("op", op),
			zap.String("file_id", fileID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	return p
}
