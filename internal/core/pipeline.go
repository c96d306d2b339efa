package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterRowDelay is the pause after every submission attempt.
const DefaultInterRowDelay = 150 * time.Millisecond

// Submitter sends one payload to the creation service.
type Submitter interface {
	Submit(ctx context.Context, p Payload) (SubmitResult, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, p Payload) (SubmitResult, error)

// Submit calls f.
func (f SubmitterFunc) Submit(ctx context.Context, p Payload) (SubmitResult, error) {
	return f(ctx, p)
}

// CancelledText is the log text for rows a cancelled run never started.
const CancelledText = "Cancelled before upload"

// Pipeline submits rows one at a time and records every attempt in Log.
type Pipeline struct {
	Submitter Submitter
	Log       *OutcomeLog

	// Delay follows every attempt, success or failure.
	Delay time.Duration

	// Now stamps payload times and log entries. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger

	// OnStatus fires after each row status change.
	OnStatus func(i int, row *CanonicalRow)

	// OnOutcome fires once per row after its log entry is appended.
	OnOutcome func(i int, row *CanonicalRow, entry LogEntry)
}

// PipelineSummary counts what SubmitAll did.
type PipelineSummary struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
	Cancelled bool
}

// SubmitAll walks rows in order. A row's failure never stops the next row.
//
// Cancellation of ctx is honoured only between rows: the row being
// submitted finishes with a context that ignores cancellation, and every row
// not yet started is logged as SKIPPED and left Pending.
func (p *Pipeline) SubmitAll(ctx context.Context, rows []*CanonicalRow) PipelineSummary {
	var sum PipelineSummary
	logger := p.logger()
	inflight := context.WithoutCancel(ctx)

	for i, row := range rows {
		if ctx.Err() != nil {
			sum.Cancelled = true
			for j := i; j < len(rows); j++ {
				p.skip(j, rows[j])
				sum.Skipped++
			}
			logger.Info("submission cancelled", "remaining", len(rows)-i)
			break
		}

		start := time.Now()
		entry := p.submitRow(inflight, i, row)
		sum.Attempted++
		if entry.State == LogSuccess {
			sum.Succeeded++
		} else {
			sum.Failed++
		}

		logger.Info("row submitted",
			"row", row.Index,
			"measuring_point", row.MeasuringPoint,
			"state", entry.State,
			"duration_ms", time.Since(start).Milliseconds(),
		)

		p.wait(ctx)
	}

	return sum
}

// submitRow runs one attempt and records exactly one entry for it.
func (p *Pipeline) submitRow(ctx context.Context, i int, row *CanonicalRow) LogEntry {
	row.UploadStatus = StatusValidating
	p.status(i, row)

	payload, res, err := p.attempt(ctx, i, row)

	e := LogEntry{
		Equipment: payload.MeasuringPoint,
		Value:     payload.LogValue(),
	}
	if e.Equipment == "" {
		e.Equipment = row.MeasuringPoint
	}
	if err != nil {
		row.UploadStatus = StatusFailed
		e.State = LogFailed
		e.ErrorText = err.Error()
	} else {
		row.UploadStatus = StatusSuccess
		e.State = LogSuccess
		e.ErrorText = "SUCCESS"
		if res.DocumentID != "" {
			e.ErrorText += " - Doc: " + res.DocumentID
		}
	}
	p.status(i, row)

	return p.record(i, row, e)
}

// attempt builds and submits the payload. A panic in either step becomes a
// client exception error.
func (p *Pipeline) attempt(ctx context.Context, i int, row *CanonicalRow) (payload Payload, res SubmitResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Client exception: %v", r)
		}
	}()

	payload = BuildPayload(*row, p.now())

	row.UploadStatus = StatusUploading
	p.status(i, row)

	res, err = p.Submitter.Submit(ctx, payload)
	return payload, res, err
}

func (p *Pipeline) skip(i int, row *CanonicalRow) {
	p.record(i, row, LogEntry{
		Equipment: row.MeasuringPoint,
		Value:     BuildPayload(*row, p.now()).LogValue(),
		ErrorText: CancelledText,
		State:     LogSkipped,
	})
}

func (p *Pipeline) record(i int, row *CanonicalRow, e LogEntry) LogEntry {
	e.Timestamp = p.now().UTC()
	if p.Log != nil {
		p.Log.Append(e)
	}
	if p.OnOutcome != nil {
		p.guard("outcome", func() { p.OnOutcome(i, row, e) })
	}
	return e
}

func (p *Pipeline) status(i int, row *CanonicalRow) {
	if p.OnStatus != nil {
		p.guard("status", func() { p.OnStatus(i, row) })
	}
}

// guard runs an observer callback. A panicking observer is logged and never
// changes the outcome of the row.
func (p *Pipeline) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger().Error("pipeline observer panicked", "observer", name, "panic", r)
		}
	}()
	fn()
}

// wait sleeps for Delay, returning early if ctx is cancelled.
func (p *Pipeline) wait(ctx context.Context) {
	if p.Delay <= 0 {
		return
	}
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
