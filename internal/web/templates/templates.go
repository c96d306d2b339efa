// Package templates holds the templ components for the upload page.
package templates

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/msmtupload/internal/core"
)

// IndexParams feeds the upload page.
type IndexParams struct {
	Columns []core.Column
	Logs    []core.LogEntry
	Gate    core.SubmitGateStatus
	// Descending reverses the log severity order.
	Descending bool
}

// Index renders the full upload page: import form, review table header and
// the outcome log.
func Index(p IndexParams) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		b.WriteString(`<title>Measurement Document Upload</title>`)
		b.WriteString(`<script src="https://unpkg.com/htmx.org@1.9.12" defer></script>`)
		b.WriteString(`</head><body>`)
		b.WriteString(`<h1>Measurement Document Upload</h1>`)

		b.WriteString(`<div id="alerts"></div>`)
		b.WriteString(`<form hx-post="/api/import" hx-encoding="multipart/form-data" hx-target="#alerts">`)
		b.WriteString(`<input type="file" name="file" accept=".xlsx,.xlsm,.csv">`)
		b.WriteString(`<button type="submit">Import</button> `)
		b.WriteString(`<a href="/api/template">Download template</a>`)
		b.WriteString(`</form>`)

		if p.Gate.Busy {
			fmt.Fprintf(&b, `<p class="busy" data-submission="%s">Upload running</p>`, templ.EscapeString(p.Gate.SubmissionID))
		}

		b.WriteString(`<table id="review"><thead><tr>`)
		for _, c := range p.Columns {
			if !c.Visible {
				continue
			}
			fmt.Fprintf(&b, `<th id="%s" style="width:%s">%s</th>`,
				templ.EscapeString(c.ID), templ.EscapeString(c.Width), templ.EscapeString(c.Label))
		}
		b.WriteString(`</tr></thead><tbody></tbody></table>`)

		writeLogTable(&b, p.Logs, p.Descending)

		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// LogTable renders only the outcome log, for HTMX refreshes.
func LogTable(entries []core.LogEntry, descending bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		writeLogTable(&b, entries, descending)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeLogTable(b *strings.Builder, entries []core.LogEntry, descending bool) {
	next := "desc"
	if descending {
		next = "asc"
	}

	b.WriteString(`<section id="log">`)
	fmt.Fprintf(b, `<table><thead><tr><th>Equipment</th><th>Value</th><th>Message</th>`+
		`<th><a hx-get="/api/logs?order=%s" hx-target="#log" hx-swap="outerHTML">State</a></th>`+
		`<th>Time</th></tr></thead><tbody>`, next)
	if len(entries) == 0 {
		b.WriteString(`<tr><td colspan="5">No uploads yet</td></tr>`)
	}
	for _, e := range entries {
		fmt.Fprintf(b, `<tr class="%s"><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			strings.ToLower(string(e.State)),
			templ.EscapeString(e.Equipment),
			templ.EscapeString(formatValue(e.Value)),
			templ.EscapeString(e.ErrorText),
			templ.EscapeString(string(e.State)),
			e.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}
	b.WriteString(`</tbody></table></section>`)
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// ErrorAlert renders an HTMX-swappable error box.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w,
			`<div class="alert alert-error" role="alert"><strong>%s</strong>`+
				`<p>%s</p><small>Code: %s</small></div>`,
			templ.EscapeString(message),
			templ.EscapeString(action),
			templ.EscapeString(code),
		)
		return err
	})
}
