package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingSubmitter struct {
	mu       sync.Mutex
	payloads []Payload
	fail     map[string]error
	panicOn  string
	onSubmit func(p Payload)
}

func (r *recordingSubmitter) Submit(ctx context.Context, p Payload) (SubmitResult, error) {
	r.mu.Lock()
	r.payloads = append(r.payloads, p)
	r.mu.Unlock()

	if r.onSubmit != nil {
		r.onSubmit(p)
	}
	if p.MeasuringPoint == r.panicOn {
		panic("boom")
	}
	if err, ok := r.fail[p.MeasuringPoint]; ok {
		return SubmitResult{}, err
	}
	return SubmitResult{DocumentID: "DOC-" + p.MeasuringPoint}, nil
}

func testRows(mps ...string) []*CanonicalRow {
	rows := make([]*CanonicalRow, len(mps))
	for i, mp := range mps {
		rows[i] = &CanonicalRow{Index: i, MeasuringPoint: mp, Reading: floatPtr(float64(i + 1)), UploadStatus: StatusPending}
	}
	return rows
}

func TestPipeline_FailureDoesNotStopLaterRows(t *testing.T) {
	sub := &recordingSubmitter{fail: map[string]error{"MP2": errors.New("HTTP 400 - Invalid measuring point")}}
	log := NewOutcomeLog()
	p := &Pipeline{Submitter: sub, Log: log}

	rows := testRows("MP1", "MP2", "MP3")
	sum := p.SubmitAll(context.Background(), rows)

	if sum.Attempted != 3 || sum.Succeeded != 2 || sum.Failed != 1 || sum.Cancelled {
		t.Errorf("summary = %+v", sum)
	}

	entries := log.Entries()
	wantStates := []LogState{LogSuccess, LogFailed, LogSuccess}
	if len(entries) != len(wantStates) {
		t.Fatalf("got %d entries, want %d", len(entries), len(wantStates))
	}
	for i, want := range wantStates {
		if entries[i].State != want {
			t.Errorf("entries[%d].State = %s, want %s", i, entries[i].State, want)
		}
	}
	if entries[0].ErrorText != "SUCCESS - Doc: DOC-MP1" {
		t.Errorf("success text = %q", entries[0].ErrorText)
	}
	if entries[1].ErrorText != "HTTP 400 - Invalid measuring point" {
		t.Errorf("failure text = %q", entries[1].ErrorText)
	}
	if entries[1].Equipment != "MP2" || entries[1].Value != 2.0 {
		t.Errorf("failure entry = %+v", entries[1])
	}

	wantStatus := []UploadStatus{StatusSuccess, StatusFailed, StatusSuccess}
	for i, row := range rows {
		if row.UploadStatus != wantStatus[i] {
			t.Errorf("rows[%d].UploadStatus = %s, want %s", i, row.UploadStatus, wantStatus[i])
		}
	}
}

func TestPipeline_StatusSequence(t *testing.T) {
	var seen []UploadStatus
	p := &Pipeline{
		Submitter: &recordingSubmitter{},
		OnStatus: func(i int, row *CanonicalRow) {
			seen = append(seen, row.UploadStatus)
		},
	}
	p.SubmitAll(context.Background(), testRows("MP1"))

	want := []UploadStatus{StatusValidating, StatusUploading, StatusSuccess}
	if len(seen) != len(want) {
		t.Fatalf("statuses = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("status[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestPipeline_PanicBecomesFailedEntry(t *testing.T) {
	log := NewOutcomeLog()
	p := &Pipeline{Submitter: &recordingSubmitter{panicOn: "MP1"}, Log: log}

	sum := p.SubmitAll(context.Background(), testRows("MP1", "MP2"))

	if sum.Failed != 1 || sum.Succeeded != 1 {
		t.Errorf("summary = %+v", sum)
	}
	entries := log.Entries()
	if !strings.HasPrefix(entries[0].ErrorText, "Client exception: boom") {
		t.Errorf("panic text = %q", entries[0].ErrorText)
	}
}

func TestPipeline_ObserverPanicKeepsOutcome(t *testing.T) {
	tests := []struct {
		name      string
		onStatus  func(i int, row *CanonicalRow)
		onOutcome func(i int, row *CanonicalRow, e LogEntry)
	}{
		{
			name:      "outcome observer",
			onOutcome: func(int, *CanonicalRow, LogEntry) { panic("observer boom") },
		},
		{
			name: "status observer on terminal status",
			onStatus: func(_ int, row *CanonicalRow) {
				if row.UploadStatus == StatusSuccess {
					panic("observer boom")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := NewOutcomeLog()
			rows := testRows("MP1")
			p := &Pipeline{
				Submitter: &recordingSubmitter{},
				Log:       log,
				Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
				OnStatus:  tt.onStatus,
				OnOutcome: tt.onOutcome,
			}

			sum := p.SubmitAll(context.Background(), rows)

			if sum.Succeeded != 1 || sum.Failed != 0 {
				t.Errorf("summary = %+v", sum)
			}
			entries := log.Entries()
			if len(entries) != 1 {
				t.Fatalf("entries = %d, want 1", len(entries))
			}
			if entries[0].State != LogSuccess || entries[0].ErrorText != "SUCCESS - Doc: DOC-MP1" {
				t.Errorf("entry = %s %q", entries[0].State, entries[0].ErrorText)
			}
			if rows[0].UploadStatus != StatusSuccess {
				t.Errorf("status = %s, want %s", rows[0].UploadStatus, StatusSuccess)
			}
		})
	}
}

func TestPipeline_CancelBetweenRows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var inflightErr error
	sub := &recordingSubmitter{}
	sub.onSubmit = func(p Payload) {
		if p.MeasuringPoint == "MP2" {
			cancel()
		}
	}
	log := NewOutcomeLog()
	p := &Pipeline{
		Submitter: SubmitterFunc(func(c context.Context, pl Payload) (SubmitResult, error) {
			res, err := sub.Submit(c, pl)
			if pl.MeasuringPoint == "MP2" {
				inflightErr = c.Err()
			}
			return res, err
		}),
		Log: log,
	}

	rows := testRows("MP1", "MP2", "MP3", "MP4")
	sum := p.SubmitAll(ctx, rows)

	if !sum.Cancelled || sum.Attempted != 2 || sum.Skipped != 2 {
		t.Fatalf("summary = %+v", sum)
	}
	if inflightErr != nil {
		t.Errorf("in-flight row saw cancellation: %v", inflightErr)
	}
	if len(sub.payloads) != 2 {
		t.Errorf("submitted %d payloads, want 2", len(sub.payloads))
	}
	if rows[1].UploadStatus != StatusSuccess {
		t.Errorf("in-flight row status = %s, want SUCCESS", rows[1].UploadStatus)
	}
	for _, row := range rows[2:] {
		if row.UploadStatus != StatusPending {
			t.Errorf("unstarted row %d status = %s, want Pending", row.Index, row.UploadStatus)
		}
	}

	entries := log.Entries()
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	for _, e := range entries[2:] {
		if e.State != LogSkipped || e.ErrorText != CancelledText {
			t.Errorf("skipped entry = %+v", e)
		}
	}
}

func TestPipeline_DelayBetweenRows(t *testing.T) {
	var (
		mu    sync.Mutex
		times []time.Time
	)
	p := &Pipeline{
		Submitter: SubmitterFunc(func(ctx context.Context, pl Payload) (SubmitResult, error) {
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
			return SubmitResult{}, nil
		}),
		Delay: 30 * time.Millisecond,
	}
	p.SubmitAll(context.Background(), testRows("A", "B", "C"))

	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < 25*time.Millisecond {
			t.Errorf("gap between row %d and %d = %v, want >= delay", i-1, i, gap)
		}
	}
}

func TestPipeline_SuccessWithoutDocumentID(t *testing.T) {
	log := NewOutcomeLog()
	p := &Pipeline{
		Submitter: SubmitterFunc(func(ctx context.Context, pl Payload) (SubmitResult, error) {
			return SubmitResult{}, nil
		}),
		Log: log,
	}
	p.SubmitAll(context.Background(), testRows("MP"))

	if got := log.Entries()[0].ErrorText; got != "SUCCESS" {
		t.Errorf("ErrorText = %q, want SUCCESS", got)
	}
}
