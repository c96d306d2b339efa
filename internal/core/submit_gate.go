package core

// submit_gate.go serializes batch submissions.
//
// The gate is a one-slot semaphore. StartSubmission takes the slot without
// waiting and is refused with ErrSubmissionInFlight while another batch is
// still posting rows. WaitForDrain blocks shutdown until the holder
// releases.

import (
	"context"
	"sync"
	"time"
)

// SubmitGate admits one submission at a time, process-wide.
type SubmitGate struct {
	slot chan struct{}

	mu     sync.RWMutex
	holder string
	since  time.Time
}

// NewSubmitGate returns an open gate.
func NewSubmitGate() *SubmitGate {
	return &SubmitGate{slot: make(chan struct{}, 1)}
}

// TryAcquire takes the slot for submissionID without blocking.
// Returns ErrSubmissionInFlight when the slot is held.
func (g *SubmitGate) TryAcquire(submissionID string) error {
	select {
	case g.slot <- struct{}{}:
		g.mu.Lock()
		g.holder = submissionID
		g.since = time.Now()
		g.mu.Unlock()
		return nil
	default:
		return ErrSubmissionInFlight
	}
}

// Acquire waits for the slot until ctx ends.
func (g *SubmitGate) Acquire(ctx context.Context, submissionID string) error {
	select {
	case g.slot <- struct{}{}:
		g.mu.Lock()
		g.holder = submissionID
		g.since = time.Now()
		g.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot. Must be called exactly once per successful acquire.
func (g *SubmitGate) Release() {
	g.mu.Lock()
	g.holder = ""
	g.since = time.Time{}
	g.mu.Unlock()

	<-g.slot
}

// Busy reports whether a submission holds the slot.
func (g *SubmitGate) Busy() bool {
	return len(g.slot) > 0
}

// WaitForDrain blocks until the slot is free or ctx is cancelled.
func (g *SubmitGate) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if !g.Busy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SubmitGateStatus is a snapshot of the gate.
type SubmitGateStatus struct {
	Busy         bool      `json:"busy"`
	SubmissionID string    `json:"submission_id,omitempty"`
	Since        time.Time `json:"since,omitzero"`
}

// Status returns the current holder, if any.
func (g *SubmitGate) Status() SubmitGateStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return SubmitGateStatus{
		Busy:         g.holder != "",
		SubmissionID: g.holder,
		Since:        g.since,
	}
}
