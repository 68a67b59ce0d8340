package upload

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printrelay/backend/internal/archive"
	"github.com/printrelay/backend/internal/convert"
	"github.com/printrelay/backend/internal/faults"
	"github.com/printrelay/backend/internal/manifest"
	"github.com/printrelay/backend/internal/models"
	"github.com/printrelay/backend/internal/settlement"
	"github.com/printrelay/backend/internal/testutil"
)

type stubConverter struct {
	pages       int
	placeholder bool
	// gate, when set, holds conversion until it is closed.
	gate chan struct{}
}

func (c stubConverter) Convert(_ context.Context, filename string, data []byte) *convert.Document {
	if c.gate != nil {
		<-c.gate
	}
	method := convert.MethodPDF
	if c.placeholder {
		method = convert.MethodPlaceholder
	}
	return &convert.Document{
		Data:        append([]byte("%PDF-1.4 "), data...),
		Method:      method,
		PageCount:   c.pages,
		Placeholder: c.placeholder,
	}
}

type fakeSink struct {
	mu      sync.Mutex
	objects []archive.Object
	err     error
}

func (s *fakeSink) Put(_ context.Context, obj archive.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.objects = append(s.objects, obj)
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for _, o := range s.objects {
		keys = append(keys, o.Key)
	}
	return keys
}

func newTestManager(g *testutil.RecordingGateway, conv Converter, sink archive.Sink, pollTimeout time.Duration) *Manager {
	poller := settlement.NewPoller(g, settlement.Options{
		Collection: testCollection,
		Interval:   5 * time.Millisecond,
		Timeout:    pollTimeout,
	}, nil, nil)
	return NewManager(Deps{
		Uploader:      newTestOrchestrator(g, testOptions(16, 2, true)),
		Poller:        poller,
		Estimator:     settlement.NewEstimator(settlement.DefaultPricing(), "shop@upi", "Campus Prints"),
		Converter:     conv,
		Archive:       sink,
		ArchivePrefix: "archive",
	})
}

func request(names ...string) Request {
	req := Request{
		SessionID: "s1",
		Settings:  models.JobSettings{Copies: 1},
		Sender:    models.SenderIdentity{Name: "Asha", ID: "21CS042"},
	}
	for _, n := range names {
		req.Files = append(req.Files, SourceFile{StagedID: "staged-" + n, Name: n, Data: []byte("contents of " + n)})
	}
	return req
}

func waitJob(t *testing.T, m *Manager, id string) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := m.Wait(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func TestManager_Settles(t *testing.T) {
	g := testutil.NewRecordingGateway()
	g.OnCall = func(c testutil.Call) {
		if c.Op == testutil.OpGet {
			rec := models.PaymentRecord{Amount: 55, Currency: "INR", PayeeID: "shop@upi", PayeeName: "Campus Prints", Status: models.PaymentRequested}
			g.Merge(context.Background(), testCollection, manifest.Key("id1"), map[string]any{
				manifest.FieldPayInfo: manifest.PaymentFields(rec),
			})
		}
	}
	sink := &fakeSink{}
	m := newTestManager(g, stubConverter{pages: 2}, sink, 5*time.Second)

	started, err := m.Start(request("thesis.pdf"))
	require.NoError(t, err)
	assert.Equal(t, StatusConverting, started.Status)

	job := waitJob(t, m, started.ID)

	assert.Equal(t, StatusSettled, job.Status)
	assert.Equal(t, 100.0, job.Progress)
	require.NotNil(t, job.Payment)
	assert.Equal(t, 55.0, job.Payment.Amount)
	assert.False(t, job.Payment.Estimated)
	require.NotNil(t, job.Estimate)
	assert.Equal(t, 4.0, job.Estimate.Amount)
	assert.Contains(t, job.PaymentURI, "am=55.00")
	assert.NotNil(t, job.CompletedAt)

	require.Len(t, job.Files, 1)
	f := job.Files[0]
	assert.Equal(t, "id1", f.FileID)
	assert.Equal(t, "staged-thesis.pdf", f.StagedID)
	assert.True(t, f.Uploaded)
	assert.Equal(t, convert.MethodPDF, f.Method)
	assert.Equal(t, 2, f.PageCount)
	assert.Positive(t, f.Fragments)

	assert.Equal(t, []string{"archive/" + job.ID + "/id1.pdf"}, sink.keys())

	fields, err := g.MemoryStore.Get(context.Background(), testCollection, manifest.Key("id1"))
	require.NoError(t, err)
	assert.Equal(t, job.ID, fields[manifest.FieldJobID])
}

func TestManager_TimesOutWithEstimate(t *testing.T) {
	g := testutil.NewRecordingGateway()
	m := newTestManager(g, stubConverter{pages: 3}, nil, 30*time.Millisecond)

	req := request("a.pdf")
	req.Settings.Copies = 2
	started, err := m.Start(req)
	require.NoError(t, err)

	job := waitJob(t, m, started.ID)

	assert.Equal(t, StatusTimedOut, job.Status)
	require.NotNil(t, job.Payment)
	assert.True(t, job.Payment.Estimated)
	assert.Equal(t, 12.0, job.Payment.Amount)
	assert.Equal(t, job.Estimate.Amount, job.Payment.Amount)
	assert.Contains(t, job.PaymentURI, "pa=shop%40upi")
}

func TestManager_PartialFailureBecomesWarning(t *testing.T) {
	g := testutil.NewRecordingGateway()
	// The preliminary manifest of the first file is rejected.
	g.FailNext(testutil.OpPut, faults.Permanentf("put", "permission denied"))
	m := newTestManager(g, stubConverter{pages: 1}, nil, 20*time.Millisecond)

	started, err := m.Start(request("bad.pdf", "good.pdf"))
	require.NoError(t, err)
	job := waitJob(t, m, started.ID)

	assert.Equal(t, StatusTimedOut, job.Status)
	require.Len(t, job.Files, 2)
	assert.False(t, job.Files[0].Uploaded)
	assert.Contains(t, job.Files[0].Error, "permission denied")
	assert.True(t, job.Files[1].Uploaded)
	require.NotEmpty(t, job.Warnings)
	assert.True(t, strings.HasPrefix(job.Warnings[0], "bad.pdf was not sent"))
}

func TestManager_AllFilesFail(t *testing.T) {
	g := testutil.NewRecordingGateway()
	g.FailNext(testutil.OpPut,
		faults.Permanentf("put", "denied"),
		faults.Permanentf("put", "denied"))
	m := newTestManager(g, stubConverter{pages: 1}, nil, time.Second)

	started, err := m.Start(request("a.pdf", "b.pdf"))
	require.NoError(t, err)
	job := waitJob(t, m, started.ID)

	assert.Equal(t, StatusError, job.Status)
	assert.Contains(t, job.Error, "upload failed for 2 of 2 files")
	assert.Nil(t, job.Payment)
	assert.Equal(t, 0, g.CallCount(testutil.OpGet))
}

func TestManager_CancelWhileAwaitingPayment(t *testing.T) {
	g := testutil.NewRecordingGateway()
	gate := make(chan struct{})
	m := newTestManager(g, stubConverter{pages: 1, gate: gate}, nil, time.Minute)

	started, err := m.Start(request("a.pdf"))
	require.NoError(t, err)

	events, unsubscribe, err := m.Subscribe(started.ID)
	require.NoError(t, err)
	defer unsubscribe()
	close(gate)

	var types []string
	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, open := <-events:
			if !open {
				done = true
				break
			}
			types = append(types, ev.Type)
			if ev.Type == EventEstimate {
				assert.Equal(t, StatusAwaitingPayment, ev.Job.Status)
				require.NoError(t, m.Cancel(started.ID))
			}
		case <-deadline:
			t.Fatal("job did not finish after cancel")
		}
	}

	job, ok := m.GetJob(started.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, job.Status)
	assert.Contains(t, types, EventEstimate)
	assert.Equal(t, EventStatus, types[len(types)-1])
}

func TestManager_ArchiveFailureIsNotFatal(t *testing.T) {
	g := testutil.NewRecordingGateway()
	sink := &fakeSink{err: errors.New("bucket missing")}
	m := newTestManager(g, stubConverter{pages: 1}, sink, 20*time.Millisecond)

	started, err := m.Start(request("a.pdf"))
	require.NoError(t, err)
	job := waitJob(t, m, started.ID)

	assert.Equal(t, StatusTimedOut, job.Status)
	assert.Contains(t, job.Warnings, "archive copy of a.pdf failed")
}

func TestManager_PlaceholderWarning(t *testing.T) {
	g := testutil.NewRecordingGateway()
	m := newTestManager(g, stubConverter{pages: 1, placeholder: true}, nil, 20*time.Millisecond)

	started, err := m.Start(request("slides.pptx"))
	require.NoError(t, err)
	job := waitJob(t, m, started.ID)

	assert.True(t, job.Files[0].Placeholder)
	assert.Contains(t, job.Warnings[0], "slides.pptx could not be converted")
}

func TestManager_StartValidation(t *testing.T) {
	m := newTestManager(testutil.NewRecordingGateway(), stubConverter{}, nil, time.Second)

	_, err := m.Start(Request{})
	assert.ErrorIs(t, err, ErrNoFiles)

	req := request("a.pdf")
	req.Settings.Copies = 1000
	_, err = m.Start(req)
	assert.ErrorIs(t, err, faults.ErrInvalidInput)
}

func TestManager_UnknownJob(t *testing.T) {
	m := newTestManager(testutil.NewRecordingGateway(), stubConverter{}, nil, time.Second)

	_, _, err := m.Subscribe("nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.ErrorIs(t, m.Cancel("nope"), ErrJobNotFound)
	_, ok := m.GetJob("nope")
	assert.False(t, ok)
}

func TestManager_SubscribeAfterFinish(t *testing.T) {
	g := testutil.NewRecordingGateway()
	m := newTestManager(g, stubConverter{pages: 1}, nil, 10*time.Millisecond)

	started, err := m.Start(request("a.pdf"))
	require.NoError(t, err)
	waitJob(t, m, started.ID)

	events, unsubscribe, err := m.Subscribe(started.ID)
	require.NoError(t, err)
	defer unsubscribe()

	ev, open := <-events
	require.True(t, open)
	assert.Equal(t, EventStatus, ev.Type)
	assert.Equal(t, StatusTimedOut, ev.Job.Status)
	_, open = <-events
	assert.False(t, open)
}

func TestManager_CleanupOldJobs(t *testing.T) {
	g := testutil.NewRecordingGateway()
	m := newTestManager(g, stubConverter{pages: 1}, nil, 10*time.Millisecond)

	started, err := m.Start(request("a.pdf"))
	require.NoError(t, err)
	waitJob(t, m, started.ID)

	assert.Equal(t, 0, m.CleanupOldJobs(time.Hour))

	m.mu.Lock()
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	m.mu.Unlock()

	assert.Equal(t, 1, m.CleanupOldJobs(time.Hour))
	_, ok := m.GetJob(started.ID)
	assert.False(t, ok)
}
