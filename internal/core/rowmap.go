package core

import "strings"

// MapRow resolves one raw row into a CanonicalRow. It performs no filtering.
func MapRow(raw RawRow) CanonicalRow {
	row := CanonicalRow{UploadStatus: StatusPending}

	if v, ok := raw.Lookup(FieldMeasuringPoint); ok {
		row.MeasuringPoint = strings.TrimSpace(cellString(v))
	}
	if v, ok := raw.Lookup(FieldReading); ok {
		row.Reading = NumberPtr(v)
	}
	// DifferenceEntered follows the cell, not the parse, so an unreadable
	// difference still shows up as entered in the review table.
	if v, ok := raw.Lookup(FieldDifference); ok {
		row.Difference = NumberPtr(v)
		row.DifferenceEntered = true
	}

	if v, ok := raw.Lookup(FieldReadBy); ok {
		row.ReadBy = strings.TrimSpace(cellString(v))
	}

	pd, _ := raw.Lookup(FieldPostingDate)
	row.PostingDateRaw = strings.TrimSpace(cellString(pd))
	if d, err := ParseDate(pd); err == nil {
		row.PostingDate = &d
	}
	row.PostingDateDisplay = DisplayDate(pd)

	if v, ok := raw.Lookup(FieldText); ok {
		row.DocumentText = strings.TrimSpace(cellString(v))
	}
	if v, ok := raw.Lookup(FieldReadingStatus); ok {
		row.ReadingStatus = strings.TrimSpace(cellString(v))
	}
	if v, ok := raw.Lookup(FieldDoneAfterTask); ok {
		row.DoneAfterTask = truthy(v)
	}

	return row
}

// MapRows maps every raw row and then drops the blank ones: rows with no
// measuring point, no reading and no document text. Index records the
// position of the row in the original file.
func MapRows(raws []RawRow) []CanonicalRow {
	mapped := make([]CanonicalRow, 0, len(raws))
	for i, raw := range raws {
		row := MapRow(raw)
		row.Index = i
		mapped = append(mapped, row)
	}

	kept := mapped[:0]
	for _, row := range mapped {
		if row.MeasuringPoint == "" && row.Reading == nil && row.DocumentText == "" {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}
