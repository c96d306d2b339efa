// Package core provides the business logic for measurement document uploads.
//
// The package holds every rule that decides what gets posted to the
// measurement document service, independent of HTTP or CLI. Web handlers,
// the msmtctl command and tests drive it through [Service].
//
// # Flow
//
//  1. [ParseSpreadsheet] reads an .xlsx/.xlsm/.csv file into header-keyed
//     [RawRow] values.
//  2. [MapRows] resolves header aliases, coerces numbers and normalizes the
//     posting date into a [CanonicalRow]. All-empty rows are dropped.
//  3. [Enricher] fills description, position and unit from the lookup
//     service. Failures only change placeholders.
//  4. [Pipeline.SubmitAll] builds a [Payload] per row and posts it through a
//     [Submitter], strictly one row at a time with a pause between rows.
//     Every attempt lands in the [OutcomeLog].
//
// # Dates
//
// [ParseDate] accepts ISO dates, /Date(ms)/ wrappers, day-first dotted or
// dashed dates, eight-digit compact dates, spreadsheet serials and a set of
// generic layouts. Display and payload rendering differ only in what they do
// on failure: [DisplayDate] shows [InvalidDateMarker], [PayloadDate] falls
// back to today.
//
// # Concurrency
//
// [Service] admits one submission at a time through a [SubmitGate].
// Cancelling a submission takes effect between rows; the row being posted
// always completes and its outcome is logged.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]:
//
//   - FILE001-FILE005: upload file problems
//   - SUB001-SUB004: batch and submission state
//   - LOOK001-LOOK003: remote service reachability and auth
//   - SYS001-SYS003: cancellation, timeouts and preference storage
//   - ERR000: anything else
package core
