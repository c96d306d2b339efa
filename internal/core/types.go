package core

import "time"

// RawRow is one spreadsheet row keyed by its header text.
// Values are strings from the file parser or numbers/bools from JSON input.
type RawRow map[string]any

// UploadStatus is the per-row feedback state driven by the Pipeline.
type UploadStatus string

const (
	StatusPending    UploadStatus = "Pending"
	StatusValidating UploadStatus = "Validating..."
	StatusUploading  UploadStatus = "Uploading..."
	StatusSuccess    UploadStatus = "SUCCESS"
	StatusFailed     UploadStatus = "FAILED"
)

// Done reports whether the row reached a terminal state.
func (s UploadStatus) Done() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanonicalRow is a row after alias resolution, number coercion and
// posting-date normalization, plus the fields filled in by enrichment.
type CanonicalRow struct {
	Index int `json:"index"`

	MeasuringPoint    string   `json:"measuring_point"`
	Reading           *float64 `json:"reading,omitempty"`
	Difference        *float64 `json:"difference,omitempty"`
	DifferenceEntered bool     `json:"difference_entered"`

	// PostingDateRaw is the cell exactly as it appeared in the file.
	PostingDateRaw     string `json:"posting_date_raw,omitempty"`
	PostingDate        *Date  `json:"posting_date,omitempty"`
	PostingDateDisplay string `json:"posting_date_display"`

	DocumentText  string `json:"document_text"`
	ReadBy        string `json:"read_by"`
	ReadingStatus string `json:"reading_status,omitempty"`
	DoneAfterTask bool   `json:"done_after_task"`

	// Enrichment
	Description    string   `json:"description"`
	PositionNumber string   `json:"position_number"`
	UnitOfMeasure  string   `json:"unit_of_measure"`
	LastReading    *float64 `json:"last_reading,omitempty"`

	UploadStatus UploadStatus `json:"upload_status"`
}

// Payload is the request body for the measurement document create call.
// Every optional member is a pointer so an unset value is left off the wire.
type Payload struct {
	MeasuringPoint               string   `json:"MeasuringPoint"`
	MsmtRdngDate                 string   `json:"MsmtRdngDate"`
	MsmtRdngTime                 string   `json:"MsmtRdngTime"`
	MsmtRdngStatus               string   `json:"MsmtRdngStatus"`
	MeasurementDocumentText      string   `json:"MeasurementDocumentText"`
	MsmtRdngByUser               string   `json:"MsmtRdngByUser"`
	MsmtIsDoneAfterTaskCompltn   bool     `json:"MsmtIsDoneAfterTaskCompltn"`
	MeasurementReadingEntryUoM   *string  `json:"MeasurementReadingEntryUoM,omitempty"`
	MeasurementReading           *float64 `json:"MeasurementReading,omitempty"`
	MsmtCounterReadingDifference *float64 `json:"MsmtCounterReadingDifference,omitempty"`
	MsmtCntrReadingDiffIsEntered bool     `json:"MsmtCntrReadingDiffIsEntered"`
}

// LogState is the outcome recorded for one submission attempt.
type LogState string

const (
	LogFailed  LogState = "FAILED"
	LogSkipped LogState = "SKIPPED"
	LogSuccess LogState = "SUCCESS"
)

// LogEntry is one immutable line of the outcome log.
type LogEntry struct {
	Equipment string    `json:"equipment"`
	Value     any       `json:"value"`
	ErrorText string    `json:"error_text"`
	State     LogState  `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// SubmitResult is what the creation service hands back on success.
type SubmitResult struct {
	DocumentID string `json:"document_id,omitempty"`
}

// PointInfo is the lookup service's view of a measuring point.
type PointInfo struct {
	Found          bool   `json:"found"`
	Description    string `json:"description"`
	PositionNumber string `json:"position_number"`
	UnitOfMeasure  string `json:"unit_of_measure"`
}

// SubmissionPhase tracks a batch submission through its lifecycle.
type SubmissionPhase string

const (
	PhaseQueued     SubmissionPhase = "queued"
	PhaseSubmitting SubmissionPhase = "submitting"
	PhaseComplete   SubmissionPhase = "complete"
	PhaseCancelled  SubmissionPhase = "cancelled"
)

// SubmissionProgress is streamed to subscribers while a batch runs.
type SubmissionProgress struct {
	SubmissionID string          `json:"submission_id"`
	BatchID      string          `json:"batch_id"`
	Phase        SubmissionPhase `json:"phase"`
	TotalRows    int             `json:"total_rows"`
	DoneRows     int             `json:"done_rows"`
	Succeeded    int             `json:"succeeded"`
	Failed       int             `json:"failed"`
	Skipped      int             `json:"skipped"`
	CurrentRow   int             `json:"current_row"`
	CurrentState UploadStatus    `json:"current_state,omitempty"`
}

// Percent returns completion as 0-100.
func (p SubmissionProgress) Percent() int {
	if p.TotalRows == 0 {
		return 0
	}
	return p.DoneRows * 100 / p.TotalRows
}

// SubmissionResult summarises a finished batch submission.
type SubmissionResult struct {
	SubmissionID string         `json:"submission_id"`
	BatchID      string         `json:"batch_id"`
	Attempted    int            `json:"attempted"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	Cancelled    bool           `json:"cancelled"`
	Entries      []LogEntry     `json:"entries"`
	Rows         []CanonicalRow `json:"rows"`
	Duration     time.Duration  `json:"duration_ns"`
}
