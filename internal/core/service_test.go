package core

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeArchive struct {
	mu      sync.Mutex
	entries map[string][]LogEntry
}

func (a *fakeArchive) Record(ctx context.Context, submissionID string, entries []LogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.entries == nil {
		a.entries = make(map[string][]LogEntry)
	}
	a.entries[submissionID] = append(a.entries[submissionID], entries...)
	return nil
}

func (a *fakeArchive) Recent(ctx context.Context, limit int) ([]ArchivedEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []ArchivedEntry
	for id, es := range a.entries {
		for _, e := range es {
			out = append(out, ArchivedEntry{SubmissionID: id, LogEntry: e})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestService(t *testing.T, sub Submitter, opts Options) *Service {
	t.Helper()
	opts.Submitter = sub
	svc, err := NewService(opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func okSubmitter() Submitter {
	return SubmitterFunc(func(ctx context.Context, p Payload) (SubmitResult, error) {
		if p.MeasuringPoint == "BAD" {
			return SubmitResult{}, errors.New("HTTP 400 - Measuring point BAD does not exist")
		}
		return SubmitResult{DocumentID: "1"}, nil
	})
}

func sampleRows() []RawRow {
	return []RawRow{
		{"Measuring Point": "MP1", "Reading": "10"},
		{"Measuring Point": "BAD", "Reading": "20"},
		{},
		{"Measuring Point": "MP3", "Difference": "5"},
	}
}

func TestNewService_RequiresSubmitter(t *testing.T) {
	if _, err := NewService(Options{}); err == nil {
		t.Error("expected error without submitter")
	}
}

func TestService_ImportRows(t *testing.T) {
	lookup := &fakeLookup{points: map[string]PointInfo{"MP1": {Description: "Pump", UnitOfMeasure: "KM"}}}
	svc := newTestService(t, okSubmitter(), Options{Lookup: lookup})

	batch, err := svc.ImportRows(context.Background(), sampleRows())
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if batch.ID == "" || len(batch.Rows) != 3 {
		t.Fatalf("batch = %+v", batch)
	}
	if batch.Rows[0].Description != "Pump" || batch.Rows[1].Description != DescriptionNotFound {
		t.Errorf("enrichment = %q, %q", batch.Rows[0].Description, batch.Rows[1].Description)
	}

	got, err := svc.Batch(batch.ID)
	if err != nil || len(got.Rows) != 3 {
		t.Errorf("Batch = %v, %v", got, err)
	}

	if _, err := svc.Batch("missing"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("Batch(missing) error = %v", err)
	}
	if _, err := svc.ImportRows(context.Background(), []RawRow{{}}); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("ImportRows(blank) error = %v", err)
	}
}

func TestService_BatchExpiry(t *testing.T) {
	t.Run("batch is dropped after its ttl", func(t *testing.T) {
		svc := newTestService(t, okSubmitter(), Options{BatchTTL: 10 * time.Millisecond})
		batch, err := svc.ImportRows(context.Background(), sampleRows())
		if err != nil {
			t.Fatalf("ImportRows: %v", err)
		}

		deadline := time.Now().Add(2 * time.Second)
		for {
			if _, err := svc.Batch(batch.ID); errors.Is(err, ErrBatchNotFound) {
				return
			}
			if time.Now().After(deadline) {
				t.Fatal("batch still present after ttl")
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	t.Run("shutdown stops pending timers", func(t *testing.T) {
		svc := newTestService(t, okSubmitter(), Options{})
		batch, err := svc.ImportRows(context.Background(), sampleRows())
		if err != nil {
			t.Fatalf("ImportRows: %v", err)
		}

		if err := svc.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}

		svc.mu.RLock()
		b := svc.batches[batch.ID]
		svc.mu.RUnlock()
		if b == nil || b.expiry == nil {
			t.Fatal("batch or its timer missing")
		}
		if b.expiry.Stop() {
			t.Error("expiry timer was still pending after Shutdown")
		}
	})
}

func TestService_ImportFileTooLarge(t *testing.T) {
	svc := newTestService(t, okSubmitter(), Options{MaxFileSize: 4})
	_, err := svc.ImportFile(context.Background(), "x.csv", []byte("Measuring Point\nMP1\n"))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("error = %v, want ErrFileTooLarge", err)
	}
}

func TestService_SubmitWholeBatch(t *testing.T) {
	archive := &fakeArchive{}
	svc := newTestService(t, okSubmitter(), Options{Archive: archive})
	ctx := context.Background()

	batch, err := svc.ImportRows(ctx, sampleRows())
	if err != nil {
		t.Fatal(err)
	}

	id, err := svc.StartSubmission(ctx, batch.ID, nil)
	if err != nil {
		t.Fatalf("StartSubmission: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := svc.SubmissionResult(waitCtx, id)
	if err != nil {
		t.Fatalf("SubmissionResult: %v", err)
	}

	if res.Attempted != 3 || res.Succeeded != 2 || res.Failed != 1 || res.Cancelled {
		t.Errorf("result = %+v", res)
	}
	if len(res.Entries) != 3 {
		t.Errorf("entries = %d, want 3", len(res.Entries))
	}

	logs := svc.Logs(false)
	if len(logs) != 3 || logs[0].State != LogFailed {
		t.Errorf("logs = %+v", logs)
	}

	after, _ := svc.Batch(batch.ID)
	want := []UploadStatus{StatusSuccess, StatusFailed, StatusSuccess}
	for i, row := range after.Rows {
		if row.UploadStatus != want[i] {
			t.Errorf("batch row %d status = %s, want %s", i, row.UploadStatus, want[i])
		}
	}

	archive.mu.Lock()
	archived := len(archive.entries[id])
	archive.mu.Unlock()
	if archived != 3 {
		t.Errorf("archived %d entries, want 3", archived)
	}

	history, err := svc.History(ctx, 10)
	if err != nil || len(history) != 3 {
		t.Errorf("History = %d entries, %v", len(history), err)
	}

	svc.ClearLogs()
	if len(svc.Logs(false)) != 0 {
		t.Error("ClearLogs left entries")
	}
}

func TestService_SubmitSelectedRows(t *testing.T) {
	var (
		mu  sync.Mutex
		mps []string
	)
	sub := SubmitterFunc(func(ctx context.Context, p Payload) (SubmitResult, error) {
		mu.Lock()
		mps = append(mps, p.MeasuringPoint)
		mu.Unlock()
		return SubmitResult{}, nil
	})
	svc := newTestService(t, sub, Options{})
	ctx := context.Background()

	batch, _ := svc.ImportRows(ctx, sampleRows())

	// Index 3 is MP3: the blank row at position 2 was dropped but keeps its slot.
	id, err := svc.StartSubmission(ctx, batch.ID, []int{3})
	if err != nil {
		t.Fatalf("StartSubmission: %v", err)
	}
	if _, err := svc.SubmissionResult(ctx, id); err != nil {
		t.Fatal(err)
	}

	if len(mps) != 1 || mps[0] != "MP3" {
		t.Errorf("submitted %v, want [MP3]", mps)
	}

	if _, err := svc.StartSubmission(ctx, batch.ID, []int{2}); !errors.Is(err, ErrNoRowsSelected) {
		t.Errorf("unknown index error = %v, want ErrNoRowsSelected", err)
	}
	if _, err := svc.StartSubmission(ctx, "nope", nil); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("unknown batch error = %v, want ErrBatchNotFound", err)
	}
}

func TestService_OneSubmissionAtATime(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	sub := SubmitterFunc(func(ctx context.Context, p Payload) (SubmitResult, error) {
		started <- struct{}{}
		<-release
		return SubmitResult{}, nil
	})
	svc := newTestService(t, sub, Options{})
	ctx := context.Background()

	batch, _ := svc.ImportRows(ctx, sampleRows())
	first, err := svc.StartSubmission(ctx, batch.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	<-started

	if _, err := svc.StartSubmission(ctx, batch.ID, nil); !errors.Is(err, ErrSubmissionInFlight) {
		t.Errorf("second StartSubmission error = %v, want ErrSubmissionInFlight", err)
	}
	if !svc.Gate().Busy || svc.Gate().SubmissionID != first {
		t.Errorf("gate = %+v", svc.Gate())
	}
	if res, err := svc.CurrentResult(first); err != nil || res != nil {
		t.Errorf("CurrentResult while running = %+v, %v; want nil, nil", res, err)
	}

	close(release)
	if _, err := svc.SubmissionResult(ctx, first); err != nil {
		t.Fatal(err)
	}
	if res, err := svc.CurrentResult(first); err != nil || res == nil || res.Attempted != 3 {
		t.Errorf("CurrentResult after finish = %+v, %v", res, err)
	}
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := svc.StartSubmission(ctx, batch.ID, nil); err != nil {
		t.Errorf("StartSubmission after drain: %v", err)
	}
}

func TestService_CancelSubmission(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	sub := SubmitterFunc(func(ctx context.Context, p Payload) (SubmitResult, error) {
		started <- struct{}{}
		<-release
		return SubmitResult{}, nil
	})
	svc := newTestService(t, sub, Options{})
	ctx := context.Background()

	batch, _ := svc.ImportRows(ctx, sampleRows())
	id, err := svc.StartSubmission(ctx, batch.ID, nil)
	if err != nil {
		t.Fatal(err)
	}

	progress, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatalf("SubscribeProgress: %v", err)
	}

	<-started
	if err := svc.CancelSubmission(id); err != nil {
		t.Fatalf("CancelSubmission: %v", err)
	}
	close(release)

	res, err := svc.SubmissionResult(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cancelled || res.Attempted != 1 || res.Succeeded != 1 || res.Skipped != 2 {
		t.Errorf("result = %+v", res)
	}

	var last SubmissionProgress
	for p := range progress {
		last = p
	}
	if last.Phase != PhaseCancelled || last.DoneRows != 3 {
		t.Errorf("last progress = %+v", last)
	}

	if err := svc.CancelSubmission("missing"); !errors.Is(err, ErrSubmissionNotFound) {
		t.Errorf("CancelSubmission(missing) = %v", err)
	}
}

func TestService_SubscribeAfterFinish(t *testing.T) {
	svc := newTestService(t, okSubmitter(), Options{})
	ctx := context.Background()
	batch, _ := svc.ImportRows(ctx, sampleRows()[:1])

	id, _ := svc.StartSubmission(ctx, batch.ID, nil)
	if _, err := svc.SubmissionResult(ctx, id); err != nil {
		t.Fatal(err)
	}

	ch, err := svc.SubscribeProgress(id)
	if err != nil {
		t.Fatalf("SubscribeProgress: %v", err)
	}
	p, ok := <-ch
	if !ok || p.Phase != PhaseComplete || p.Percent() != 100 {
		t.Errorf("first progress = %+v ok=%v", p, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after a finished submission")
	}
}

func TestService_OptionalCollaborators(t *testing.T) {
	svc := newTestService(t, okSubmitter(), Options{})
	ctx := context.Background()

	if _, err := svc.ColumnSettings(); !errors.Is(err, ErrPreferencesDisabled) {
		t.Errorf("ColumnSettings error = %v", err)
	}
	if _, err := svc.MeasuringPoint(ctx, "MP"); !errors.Is(err, ErrLookupUnavailable) {
		t.Errorf("MeasuringPoint error = %v", err)
	}
	if _, _, err := svc.LatestReading(ctx, "MP"); !errors.Is(err, ErrLookupUnavailable) {
		t.Errorf("LatestReading error = %v", err)
	}
	if h, err := svc.History(ctx, 5); err != nil || h != nil {
		t.Errorf("History without archive = %v, %v", h, err)
	}

	var buf bytes.Buffer
	if err := svc.Template(&buf); err != nil || buf.Len() == 0 {
		t.Errorf("Template = %d bytes, %v", buf.Len(), err)
	}

	withPrefs := newTestService(t, okSubmitter(), Options{Preferences: newMapStore()})
	cs, err := withPrefs.ColumnSettings()
	if err != nil {
		t.Fatal(err)
	}
	if cols, err := cs.Load(ctx); err != nil || len(cols) == 0 {
		t.Errorf("Load = %d cols, %v", len(cols), err)
	}
}
