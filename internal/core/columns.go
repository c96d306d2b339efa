package core

// columns.go holds the review-table column personalization.
//
// Settings live in an injected PreferenceStore under a schema version; a
// version change discards whatever was saved before. MergeColumnConfig is
// the pure part and is what the tests exercise most.

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Preference keys and the current settings schema version.
const (
	ColumnSettingsKey        = "mp_col_settings"
	ColumnSettingsVersionKey = "mp_col_settings_ver"
	ColumnSettingsVersion    = "v2"
)

// Column is one review-table column.
type Column struct {
	ID      string `json:"id"`
	Key     string `json:"key,omitempty"`
	Label   string `json:"label,omitempty"`
	Visible bool   `json:"visible"`
	Width   string `json:"width,omitempty"`
}

// DefaultColumns returns a fresh copy of the built-in column layout.
func DefaultColumns() []Column {
	return []Column{
		{ID: "colSelect", Key: "select", Label: "Select", Visible: true, Width: "2rem"},
		{ID: "colMeasuringPoint", Key: "MeasuringPoint", Label: "Measuring Point", Visible: true, Width: "8rem"},
		{ID: "colDescription", Key: "MeasuringPointDescription", Label: "Description", Visible: true, Width: "10rem"},
		{ID: "colPosition", Key: "MeasuringPointPositionNumber", Label: "Position Number", Visible: true, Width: "10rem"},
		{ID: "colCounter", Key: "Counter", Label: "Counter/Reading", Visible: true, Width: "5rem"},
		{ID: "colDifference", Key: "Difference", Label: "Difference", Visible: true, Width: "5rem"},
		{ID: "colPostingDate", Key: "PostingDate", Label: "Posting Date", Visible: true, Width: "8rem"},
		{ID: "colText", Key: "MeasurementDocumentText", Label: "Text", Visible: true, Width: "20rem"},
		{ID: "colReadyBy", Key: "ReadyBy", Label: "Read By", Visible: true, Width: "8rem"},
	}
}

var columnWidthRe = regexp.MustCompile(`^\d+(\.\d+)?(rem|px|%)$`)

// ValidColumnWidth reports whether w is a plain CSS length in rem, px or %.
func ValidColumnWidth(w string) bool {
	return columnWidthRe.MatchString(w)
}

// MergeColumnConfig overlays saved settings on defaults.
//
// Defaults keep their order, key and label. A default with a saved
// counterpart is forced visible and takes the saved width when it is a
// valid column width. Saved columns unknown to defaults are appended as
// saved, minus any invalid width. A nil
// saved slice yields the defaults unchanged.
func MergeColumnConfig(saved, defaults []Column) []Column {
	byID := make(map[string]Column, len(saved))
	for _, c := range saved {
		if c.ID != "" {
			if _, dup := byID[c.ID]; !dup {
				byID[c.ID] = c
			}
		}
	}

	merged := make([]Column, 0, len(defaults)+len(saved))
	known := make(map[string]bool, len(defaults))
	for _, def := range defaults {
		known[def.ID] = true
		s, ok := byID[def.ID]
		if !ok {
			merged = append(merged, def)
			continue
		}
		width := def.Width
		if w := strings.TrimSpace(s.Width); ValidColumnWidth(w) {
			width = w
		}
		merged = append(merged, Column{ID: def.ID, Key: def.Key, Label: def.Label, Visible: true, Width: width})
	}

	for _, c := range saved {
		if c.ID == "" || known[c.ID] {
			continue
		}
		known[c.ID] = true
		if !ValidColumnWidth(c.Width) {
			c.Width = ""
		}
		merged = append(merged, c)
	}

	return merged
}

// PreferenceStore is a small persistent key-value store.
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// ColumnSettings loads and saves the column layout through a PreferenceStore.
type ColumnSettings struct {
	store    PreferenceStore
	version  string
	defaults func() []Column
	retry    RetryPolicy

	mu             sync.Mutex
	versionChecked bool
}

// NewColumnSettings binds settings to store. An empty version selects
// ColumnSettingsVersion.
func NewColumnSettings(store PreferenceStore, version string, retry RetryPolicy) *ColumnSettings {
	if version == "" {
		version = ColumnSettingsVersion
	}
	return &ColumnSettings{
		store:    store,
		version:  version,
		defaults: DefaultColumns,
		retry:    retry,
	}
}

// Load returns the merged layout. Nothing saved, or something that is not a
// column list, resets the store to the defaults; otherwise the merge is
// written back only when it differs from what was stored.
func (cs *ColumnSettings) Load(ctx context.Context) ([]Column, error) {
	if err := cs.ensureVersion(ctx); err != nil {
		return nil, err
	}

	defaults := cs.defaults()
	raw, ok, err := cs.store.Get(ctx, ColumnSettingsKey)
	if err != nil {
		return nil, fmt.Errorf("load column settings: %w", err)
	}

	var saved []Column
	if !ok || json.Unmarshal([]byte(raw), &saved) != nil || saved == nil {
		if err := cs.write(ctx, defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}

	merged := MergeColumnConfig(saved, defaults)
	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode column settings: %w", err)
	}
	if string(encoded) != raw {
		if err := cs.store.Set(ctx, ColumnSettingsKey, string(encoded)); err != nil {
			return nil, fmt.Errorf("save merged column settings: %w", err)
		}
	}
	return merged, nil
}

// LoadWithRetry retries Load under the configured policy while the store
// fails, returning the last error when attempts run out.
func (cs *ColumnSettings) LoadWithRetry(ctx context.Context) ([]Column, error) {
	var (
		cols    []Column
		lastErr error
	)
	_, err := Retry(ctx, cs.retry, func(ctx context.Context) (bool, error) {
		cols, lastErr = cs.Load(ctx)
		return lastErr == nil, nil
	})
	if err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return cols, nil
}

// Save stores the columns that carry an ID and returns what was stored. A
// width that is not a valid column width is dropped.
func (cs *ColumnSettings) Save(ctx context.Context, cols []Column) ([]Column, error) {
	if err := cs.ensureVersion(ctx); err != nil {
		return nil, err
	}
	keep := make([]Column, 0, len(cols))
	for _, c := range cols {
		if c.ID == "" {
			continue
		}
		c.Width = strings.TrimSpace(c.Width)
		if !ValidColumnWidth(c.Width) {
			c.Width = ""
		}
		keep = append(keep, c)
	}
	if err := cs.write(ctx, keep); err != nil {
		return nil, err
	}
	return keep, nil
}

// Reset restores the default layout.
func (cs *ColumnSettings) Reset(ctx context.Context) ([]Column, error) {
	defaults := cs.defaults()
	if err := cs.write(ctx, defaults); err != nil {
		return nil, err
	}
	return defaults, nil
}

// ensureVersion drops saved settings written under another schema version.
func (cs *ColumnSettings) ensureVersion(ctx context.Context) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.versionChecked {
		return nil
	}

	v, _, err := cs.store.Get(ctx, ColumnSettingsVersionKey)
	if err != nil {
		return fmt.Errorf("read column settings version: %w", err)
	}
	if v != cs.version {
		if err := cs.store.Set(ctx, ColumnSettingsKey, ""); err != nil {
			return fmt.Errorf("drop stale column settings: %w", err)
		}
		if err := cs.store.Set(ctx, ColumnSettingsVersionKey, cs.version); err != nil {
			return fmt.Errorf("write column settings version: %w", err)
		}
	}
	cs.versionChecked = true
	return nil
}

func (cs *ColumnSettings) write(ctx context.Context, cols []Column) error {
	encoded, err := json.Marshal(cols)
	if err != nil {
		return fmt.Errorf("encode column settings: %w", err)
	}
	if err := cs.store.Set(ctx, ColumnSettingsKey, string(encoded)); err != nil {
		return fmt.Errorf("save column settings: %w", err)
	}
	return nil
}
