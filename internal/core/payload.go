package core

import "time"

// Payload defaults for values the row leaves empty.
const (
	DefaultDocumentText  = "Reading Taken"
	DefaultReadBy        = "USER"
	DefaultReadingStatus = "1"
)

// BuildPayload turns a canonical row into the create request body.
//
// A present difference selects difference mode and suppresses any reading;
// otherwise a present reading selects reading mode. With neither, the
// payload carries no value at all and the remote service rejects it, which
// is how such rows get their error text. MsmtRdngTime is always now's wall
// clock; a missing or unusable posting date also falls back to now.
func BuildPayload(row CanonicalRow, now time.Time) Payload {
	p := Payload{
		MeasuringPoint:             row.MeasuringPoint,
		MsmtRdngTime:               now.Format("15:04:05"),
		MsmtRdngStatus:             orDefault(row.ReadingStatus, DefaultReadingStatus),
		MeasurementDocumentText:    orDefault(row.DocumentText, DefaultDocumentText),
		MsmtRdngByUser:             orDefault(row.ReadBy, DefaultReadBy),
		MsmtIsDoneAfterTaskCompltn: row.DoneAfterTask,
	}

	if row.PostingDate != nil {
		p.MsmtRdngDate = Render(*row.PostingDate, FormatISO)
	} else {
		p.MsmtRdngDate = PayloadDate(row.PostingDateRaw, now)
	}

	if row.UnitOfMeasure != "" {
		uom := row.UnitOfMeasure
		p.MeasurementReadingEntryUoM = &uom
	}

	switch {
	case row.Difference != nil:
		diff := *row.Difference
		p.MsmtCounterReadingDifference = &diff
		p.MsmtCntrReadingDiffIsEntered = true
	case row.Reading != nil:
		reading := *row.Reading
		p.MeasurementReading = &reading
		p.MsmtCntrReadingDiffIsEntered = false
	default:
		p.MsmtCntrReadingDiffIsEntered = false
	}

	return p
}

// LogValue is the number shown next to a log entry: the reading, or the
// difference in difference mode. Empty string when neither is set.
func (p Payload) LogValue() any {
	if p.MeasurementReading != nil {
		return *p.MeasurementReading
	}
	if p.MsmtCounterReadingDifference != nil {
		return *p.MsmtCounterReadingDifference
	}
	return ""
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
