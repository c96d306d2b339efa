package core

// Field names a logical column of an import file.
type Field string

const (
	FieldMeasuringPoint Field = "measuring_point"
	FieldReading        Field = "reading"
	FieldDifference     Field = "difference"
	FieldReadBy         Field = "read_by"
	FieldPostingDate    Field = "posting_date"
	FieldText           Field = "text"
	FieldReadingStatus  Field = "reading_status"
	FieldDoneAfterTask  Field = "done_after_task"
)

// HeaderAliases lists, per field, the header spellings seen in user files.
// Matching is case-sensitive and the first present, non-blank alias wins.
var HeaderAliases = map[Field][]string{
	FieldMeasuringPoint: {"Measuring Point", "MeasuringPoint", "Measuring point", "Measuring_Point", "Equipment"},
	FieldReading:        {"Reading", "MeasurementReading", "MeasurementCounterReading", "Counter", "Value"},
	FieldDifference:     {"Difference", "MsmtCounterReadingDifference", "CounterDifference"},
	FieldReadBy:         {"Read By", "ReadBy", "Ready By", "ReadyBy", "MsmtRdngByUser", "User"},
	FieldPostingDate: {
		"Posting Date", "MsmtRdngDate", "Date", "PostingDate",
		"Posting Date (DD-MM-YYYY)", "Posting Date (MM-DD-YYYY)",
		"Posting Date(DD-MM-YYYY)", "PostingDate(DD-MM-YYYY)",
	},
	FieldText:          {"MeasurementDocumentText", "Text", "LongText", "note"},
	FieldReadingStatus: {"MsmtRdngStatus", "Status"},
	FieldDoneAfterTask: {"MsmtIsDoneAfterTaskCompltn", "MsmtIsDoneAfterTaskCompletion", "IsDoneAfterTask"},
}

// TemplateHeaders is the header row of the downloadable import template.
var TemplateHeaders = []string{
	"Measuring Point",
	"Reading",
	"Difference",
	"Posting Date (DD-MM-YYYY)",
	"Text",
	"Read By",
}

// Lookup returns the value of the first alias of f that is present and
// non-blank in row.
func (row RawRow) Lookup(f Field) (any, bool) {
	for _, name := range HeaderAliases[f] {
		v, ok := row[name]
		if !ok || isBlank(v) {
			continue
		}
		return v, true
	}
	return nil, false
}
