package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service defaults.
var (
	// DefaultMaxFileSize caps ImportFile input (10MB).
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// DefaultSubmitTimeout bounds one batch submission end to end.
	DefaultSubmitTimeout = 30 * time.Minute

	// DefaultBatchTTL is how long an imported batch stays addressable.
	DefaultBatchTTL = 2 * time.Hour

	// submissionRetention keeps a finished submission readable for late
	// progress subscribers and result polling.
	submissionRetention = 5 * time.Minute

	archiveTimeout = 10 * time.Second
)

// ArchivedEntry is a LogEntry as persisted by a LogArchive.
type ArchivedEntry struct {
	SubmissionID string `json:"submission_id"`
	LogEntry
}

// LogArchive keeps outcome entries beyond the life of the process.
type LogArchive interface {
	Record(ctx context.Context, submissionID string, entries []LogEntry) error
	Recent(ctx context.Context, limit int) ([]ArchivedEntry, error)
}

// Options configures a Service. Submitter is required.
type Options struct {
	Submitter   Submitter
	Lookup      PointLookup
	Preferences PreferenceStore
	Archive     LogArchive

	// InterRowDelay follows every row; zero disables it. Negative selects
	// DefaultInterRowDelay.
	InterRowDelay     time.Duration
	SubmitTimeout     time.Duration
	MaxFileSize       int64
	BatchTTL          time.Duration
	WithLatestReading bool

	SettingsVersion string
	SettingsRetry   RetryPolicy

	Logger *slog.Logger
	Now    func() time.Time
}

// Batch is an imported, enriched set of rows awaiting submission.
type Batch struct {
	ID        string         `json:"batch_id"`
	FileName  string         `json:"file_name,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Rows      []CanonicalRow `json:"rows"`
}

type storedBatch struct {
	mu    sync.RWMutex
	batch Batch

	// expiry drops the batch once BatchTTL has passed.
	expiry *time.Timer
}

func (b *storedBatch) snapshot() *Batch {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := b.batch
	out.Rows = make([]CanonicalRow, len(b.batch.Rows))
	copy(out.Rows, b.batch.Rows)
	return &out
}

// Service provides the business logic behind the web and CLI surfaces.
type Service struct {
	submitter Submitter
	lookup    PointLookup
	archive   LogArchive
	settings  *ColumnSettings
	gate      *SubmitGate
	log       *OutcomeLog
	logger    *slog.Logger
	now       func() time.Time

	delay             time.Duration
	submitTimeout     time.Duration
	maxFileSize       int64
	batchTTL          time.Duration
	withLatestReading bool

	mu          sync.RWMutex
	batches     map[string]*storedBatch
	submissions map[string]*activeSubmission
}

type activeSubmission struct {
	ID         string
	BatchID    string
	Cancel     context.CancelFunc
	Progress   SubmissionProgress
	Result     *SubmissionResult
	Done       chan struct{}
	Listeners  []chan SubmissionProgress
	ListenerMu sync.Mutex
	closed     bool
}

// NewService creates a Service from opts.
func NewService(opts Options) (*Service, error) {
	if opts.Submitter == nil {
		return nil, errors.New("core: submitter is required")
	}

	s := &Service{
		submitter:         opts.Submitter,
		lookup:            opts.Lookup,
		archive:           opts.Archive,
		gate:              NewSubmitGate(),
		log:               NewOutcomeLog(),
		logger:            opts.Logger,
		now:               opts.Now,
		delay:             opts.InterRowDelay,
		submitTimeout:     opts.SubmitTimeout,
		maxFileSize:       opts.MaxFileSize,
		batchTTL:          opts.BatchTTL,
		withLatestReading: opts.WithLatestReading,
		batches:           make(map[string]*storedBatch),
		submissions:       make(map[string]*activeSubmission),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.delay < 0 {
		s.delay = DefaultInterRowDelay
	}
	if s.submitTimeout <= 0 {
		s.submitTimeout = DefaultSubmitTimeout
	}
	if s.maxFileSize <= 0 {
		s.maxFileSize = DefaultMaxFileSize
	}
	if s.batchTTL <= 0 {
		s.batchTTL = DefaultBatchTTL
	}
	if opts.Preferences != nil {
		retry := opts.SettingsRetry
		if retry.MaxAttempts == 0 {
			retry = DefaultRetryPolicy
		}
		s.settings = NewColumnSettings(opts.Preferences, opts.SettingsVersion, retry)
	}
	return s, nil
}

// ImportFile parses, maps and enriches an uploaded spreadsheet and stores it
// as a new batch.
func (s *Service) ImportFile(ctx context.Context, fileName string, data []byte) (*Batch, error) {
	if int64(len(data)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(data), s.maxFileSize)
	}
	raw, err := ParseSpreadsheet(fileName, data)
	if err != nil {
		return nil, err
	}
	return s.importRows(ctx, fileName, raw)
}

// ImportRows is ImportFile for rows that were already parsed by the caller.
func (s *Service) ImportRows(ctx context.Context, raw []RawRow) (*Batch, error) {
	return s.importRows(ctx, "", raw)
}

func (s *Service) importRows(ctx context.Context, fileName string, raw []RawRow) (*Batch, error) {
	rows := MapRows(raw)
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	if s.lookup != nil {
		enricher := &Enricher{
			Lookup:            s.lookup,
			WithLatestReading: s.withLatestReading,
			Logger:            s.logger,
		}
		enricher.Enrich(ctx, rows)
	} else {
		for i := range rows {
			rows[i].UnitOfMeasure = DefaultUnitOfMeasure
		}
	}

	b := &storedBatch{batch: Batch{
		ID:        uuid.New().String(),
		FileName:  fileName,
		CreatedAt: s.now().UTC(),
		Rows:      rows,
	}}

	id := b.batch.ID
	s.mu.Lock()
	s.batches[id] = b
	b.expiry = time.AfterFunc(s.batchTTL, func() {
		s.mu.Lock()
		delete(s.batches, id)
		s.mu.Unlock()
	})
	s.mu.Unlock()

	s.logger.Info("batch imported",
		"batch_id", id,
		"file_name", fileName,
		"raw_rows", len(raw),
		"rows", len(rows),
	)
	return b.snapshot(), nil
}

// Batch returns a snapshot of an imported batch, including the live upload
// status of each row.
func (s *Service) Batch(batchID string) (*Batch, error) {
	b, err := s.batch(batchID)
	if err != nil {
		return nil, err
	}
	return b.snapshot(), nil
}

func (s *Service) batch(batchID string) (*storedBatch, error) {
	s.mu.RLock()
	b, ok := s.batches[batchID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}
	return b, nil
}

// StartSubmission posts the selected rows of a batch in the background and
// returns the submission ID immediately. rowIndexes holds CanonicalRow.Index
// values; an empty slice selects every row. Only one submission runs at a
// time; a second call while one is running fails with ErrSubmissionInFlight.
func (s *Service) StartSubmission(ctx context.Context, batchID string, rowIndexes []int) (string, error) {
	b, err := s.batch(batchID)
	if err != nil {
		return "", err
	}

	positions := selectRows(b, rowIndexes)
	if len(positions) == 0 {
		return "", ErrNoRowsSelected
	}

	id := uuid.New().String()
	if err := s.gate.TryAcquire(id); err != nil {
		return "", err
	}

	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	sub := &activeSubmission{
		ID:      id,
		BatchID: batchID,
		Cancel:  cancel,
		Progress: SubmissionProgress{
			SubmissionID: id,
			BatchID:      batchID,
			Phase:        PhaseQueued,
			TotalRows:    len(positions),
		},
		Done: make(chan struct{}),
	}

	s.mu.Lock()
	s.submissions[id] = sub
	s.mu.Unlock()

	go s.runSubmission(subCtx, sub, b, positions)

	return id, nil
}

func selectRows(b *storedBatch, rowIndexes []int) []int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(rowIndexes) == 0 {
		all := make([]int, len(b.batch.Rows))
		for i := range all {
			all[i] = i
		}
		return all
	}

	want := make(map[int]bool, len(rowIndexes))
	for _, idx := range rowIndexes {
		want[idx] = true
	}
	var positions []int
	for pos, row := range b.batch.Rows {
		if want[row.Index] {
			positions = append(positions, pos)
		}
	}
	return positions
}

func (s *Service) runSubmission(ctx context.Context, sub *activeSubmission, b *storedBatch, positions []int) {
	start := time.Now()
	logger := s.logger.With("submission_id", sub.ID, "batch_id", sub.BatchID)

	defer func() {
		sub.Cancel()
		s.gate.Release()
		sub.closeListeners()
		close(sub.Done)
		s.cleanup(sub.ID, submissionRetention)
	}()

	b.mu.RLock()
	work := make([]*CanonicalRow, len(positions))
	for i, pos := range positions {
		row := b.batch.Rows[pos]
		work[i] = &row
	}
	b.mu.RUnlock()

	sub.update(func(p *SubmissionProgress) { p.Phase = PhaseSubmitting })

	var (
		entriesMu sync.Mutex
		entries   []LogEntry
	)
	pipeline := &Pipeline{
		Submitter: s.submitter,
		Log:       s.log,
		Delay:     s.delay,
		Now:       s.now,
		Logger:    logger,
		OnStatus: func(i int, row *CanonicalRow) {
			b.mu.Lock()
			b.batch.Rows[positions[i]].UploadStatus = row.UploadStatus
			b.mu.Unlock()
			sub.update(func(p *SubmissionProgress) {
				p.CurrentRow = row.Index
				p.CurrentState = row.UploadStatus
			})
		},
		OnOutcome: func(i int, row *CanonicalRow, e LogEntry) {
			entriesMu.Lock()
			entries = append(entries, e)
			entriesMu.Unlock()
			sub.update(func(p *SubmissionProgress) {
				p.DoneRows++
				switch e.State {
				case LogSuccess:
					p.Succeeded++
				case LogFailed:
					p.Failed++
				case LogSkipped:
					p.Skipped++
				}
			})
		},
	}

	logger.Info("submission started", "rows", len(work))
	sum := pipeline.SubmitAll(ctx, work)

	rows := make([]CanonicalRow, len(work))
	for i, r := range work {
		rows[i] = *r
	}
	result := &SubmissionResult{
		SubmissionID: sub.ID,
		BatchID:      sub.BatchID,
		Attempted:    sum.Attempted,
		Succeeded:    sum.Succeeded,
		Failed:       sum.Failed,
		Skipped:      sum.Skipped,
		Cancelled:    sum.Cancelled,
		Entries:      entries,
		Rows:         rows,
		Duration:     time.Since(start),
	}

	s.archiveEntries(logger, sub.ID, entries)

	s.mu.Lock()
	sub.Result = result
	s.mu.Unlock()

	sub.update(func(p *SubmissionProgress) {
		if sum.Cancelled {
			p.Phase = PhaseCancelled
		} else {
			p.Phase = PhaseComplete
		}
	})

	logger.Info("submission finished",
		"attempted", sum.Attempted,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"cancelled", sum.Cancelled,
		"duration_ms", result.Duration.Milliseconds(),
	)
}

func (s *Service) archiveEntries(logger *slog.Logger, submissionID string, entries []LogEntry) {
	if s.archive == nil || len(entries) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.archive.Record(ctx, submissionID, entries); err != nil {
		logger.Error("archive outcome log failed", "entries", len(entries), "error", err)
	}
}

// SubscribeProgress returns a channel of progress updates. The current
// state is sent first; the channel closes when the submission ends.
func (s *Service) SubscribeProgress(submissionID string) (<-chan SubmissionProgress, error) {
	sub, err := s.submission(submissionID)
	if err != nil {
		return nil, err
	}

	ch := make(chan SubmissionProgress, 16)

	sub.ListenerMu.Lock()
	defer sub.ListenerMu.Unlock()

	ch <- sub.Progress
	if sub.closed {
		close(ch)
	} else {
		sub.Listeners = append(sub.Listeners, ch)
	}
	return ch, nil
}

// Progress returns the latest progress snapshot.
func (s *Service) Progress(submissionID string) (SubmissionProgress, error) {
	sub, err := s.submission(submissionID)
	if err != nil {
		return SubmissionProgress{}, err
	}
	sub.ListenerMu.Lock()
	defer sub.ListenerMu.Unlock()
	return sub.Progress, nil
}

// CancelSubmission stops a running submission after its in-flight row.
func (s *Service) CancelSubmission(submissionID string) error {
	sub, err := s.submission(submissionID)
	if err != nil {
		return err
	}
	sub.Cancel()
	return nil
}

// SubmissionResult waits for a submission to finish and returns its result.
func (s *Service) SubmissionResult(ctx context.Context, submissionID string) (*SubmissionResult, error) {
	sub, err := s.submission(submissionID)
	if err != nil {
		return nil, err
	}

	select {
	case <-sub.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return sub.Result, nil
}

// CurrentResult returns the result of a finished submission, or nil while
// it is still running.
func (s *Service) CurrentResult(submissionID string) (*SubmissionResult, error) {
	sub, err := s.submission(submissionID)
	if err != nil {
		return nil, err
	}

	select {
	case <-sub.Done:
	default:
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return sub.Result, nil
}

func (s *Service) submission(submissionID string) (*activeSubmission, error) {
	s.mu.RLock()
	sub, ok := s.submissions[submissionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubmissionNotFound, submissionID)
	}
	return sub, nil
}

// Gate reports whether a submission is running.
func (s *Service) Gate() SubmitGateStatus {
	return s.gate.Status()
}

// Logs returns the outcome log sorted by severity.
func (s *Service) Logs(descending bool) []LogEntry {
	return s.log.Sorted(descending)
}

// ClearLogs empties the in-memory outcome log. Archived entries are kept.
func (s *Service) ClearLogs() {
	s.log.Clear()
}

// History returns the most recent archived entries, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]ArchivedEntry, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.Recent(ctx, limit)
}

// Template writes the blank import workbook.
func (s *Service) Template(w io.Writer) error {
	return WriteTemplate(w)
}

// ColumnSettings returns the column layout store.
func (s *Service) ColumnSettings() (*ColumnSettings, error) {
	if s.settings == nil {
		return nil, ErrPreferencesDisabled
	}
	return s.settings, nil
}

// MeasuringPoint looks up one measuring point.
func (s *Service) MeasuringPoint(ctx context.Context, id string) (PointInfo, error) {
	if s.lookup == nil {
		return PointInfo{}, ErrLookupUnavailable
	}
	return s.lookup.LookupMeasuringPoint(ctx, id)
}

// LatestReading returns the newest recorded reading for a measuring point.
func (s *Service) LatestReading(ctx context.Context, id string) (float64, bool, error) {
	if s.lookup == nil {
		return 0, false, ErrLookupUnavailable
	}
	return s.lookup.LatestReading(ctx, id)
}

// Shutdown cancels running submissions, stops the batch expiry timers and
// waits for the in-flight row to finish or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, sub := range s.submissions {
		sub.Cancel()
	}
	for _, b := range s.batches {
		if b.expiry != nil {
			b.expiry.Stop()
		}
	}
	s.mu.RUnlock()
	return s.gate.WaitForDrain(ctx)
}

// update applies fn to the progress and fans the new state out.
func (sub *activeSubmission) update(fn func(p *SubmissionProgress)) {
	sub.ListenerMu.Lock()
	defer sub.ListenerMu.Unlock()

	fn(&sub.Progress)
	for _, ch := range sub.Listeners {
		select {
		case ch <- sub.Progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

func (sub *activeSubmission) closeListeners() {
	sub.ListenerMu.Lock()
	defer sub.ListenerMu.Unlock()

	for _, ch := range sub.Listeners {
		close(ch)
	}
	sub.Listeners = nil
	sub.closed = true
}

// cleanup removes the submission from tracking after a delay.
func (s *Service) cleanup(submissionID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.submissions, submissionID)
		s.mu.Unlock()
	})
}
