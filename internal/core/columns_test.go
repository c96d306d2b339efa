package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type mapStore struct {
	mu      sync.Mutex
	values  map[string]string
	sets    int
	failGet int
}

func newMapStore() *mapStore {
	return &mapStore{values: make(map[string]string)}
}

func (m *mapStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet > 0 {
		m.failGet--
		return "", false, errors.New("store unavailable")
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mapStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.sets++
	return nil
}

func TestMergeColumnConfig(t *testing.T) {
	defaults := []Column{
		{ID: "a", Key: "A", Label: "Alpha", Visible: true, Width: "5rem"},
		{ID: "b", Key: "B", Label: "Beta", Visible: true, Width: "6rem"},
	}

	t.Run("nil saved returns defaults", func(t *testing.T) {
		got := MergeColumnConfig(nil, defaults)
		if len(got) != 2 || got[0] != defaults[0] || got[1] != defaults[1] {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("saved width applies and visibility is forced", func(t *testing.T) {
		saved := []Column{{ID: "b", Label: "Renamed", Visible: false, Width: "9rem"}}
		got := MergeColumnConfig(saved, defaults)
		if got[1].Width != "9rem" || !got[1].Visible || got[1].Label != "Beta" {
			t.Errorf("merged b = %+v", got[1])
		}
	})

	t.Run("blank saved width keeps default", func(t *testing.T) {
		got := MergeColumnConfig([]Column{{ID: "a", Width: "  "}}, defaults)
		if got[0].Width != "5rem" {
			t.Errorf("width = %q, want 5rem", got[0].Width)
		}
	})

	t.Run("invalid saved width is dropped", func(t *testing.T) {
		saved := []Column{
			{ID: "a", Width: "1px;background:url(x)"},
			{ID: "z", Label: "Zed", Width: "expression(alert(1))"},
		}
		got := MergeColumnConfig(saved, defaults)
		if got[0].Width != "5rem" {
			t.Errorf("a width = %q, want 5rem", got[0].Width)
		}
		if got[2].ID != "z" || got[2].Width != "" {
			t.Errorf("appended = %+v, want empty width", got[2])
		}
	})

	t.Run("unknown saved columns are appended", func(t *testing.T) {
		got := MergeColumnConfig([]Column{{ID: "z", Label: "Zed", Width: "1rem"}, {ID: "a"}}, defaults)
		if len(got) != 3 || got[2].ID != "z" || got[2].Label != "Zed" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("defaults keep their order", func(t *testing.T) {
		got := MergeColumnConfig([]Column{{ID: "b"}, {ID: "a"}}, defaults)
		if got[0].ID != "a" || got[1].ID != "b" {
			t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
		}
	})
}

func TestColumnSettings_LoadResetsWhenNothingSaved(t *testing.T) {
	store := newMapStore()
	cs := NewColumnSettings(store, "", DefaultRetryPolicy)

	cols, err := cs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cols) != len(DefaultColumns()) {
		t.Errorf("got %d columns, want defaults", len(cols))
	}
	if store.values[ColumnSettingsVersionKey] != ColumnSettingsVersion {
		t.Errorf("version = %q", store.values[ColumnSettingsVersionKey])
	}

	var saved []Column
	if err := json.Unmarshal([]byte(store.values[ColumnSettingsKey]), &saved); err != nil {
		t.Fatalf("stored settings not JSON: %v", err)
	}
	if len(saved) != len(cols) {
		t.Errorf("stored %d columns, want %d", len(saved), len(cols))
	}
}

func TestColumnSettings_VersionChangeDropsSaved(t *testing.T) {
	store := newMapStore()
	store.values[ColumnSettingsVersionKey] = "v1"
	store.values[ColumnSettingsKey] = `[{"id":"colText","width":"99rem"}]`

	cs := NewColumnSettings(store, "v2", DefaultRetryPolicy)
	cols, err := cs.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, c := range cols {
		if c.ID == "colText" && c.Width == "99rem" {
			t.Error("stale settings survived a version change")
		}
	}
	if store.values[ColumnSettingsVersionKey] != "v2" {
		t.Errorf("version = %q, want v2", store.values[ColumnSettingsVersionKey])
	}
}

func TestColumnSettings_SaveAndMergeWriteBack(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	cs := NewColumnSettings(store, "", DefaultRetryPolicy)

	saved, err := cs.Save(ctx, []Column{{ID: "colText", Width: "30rem"}, {Label: "no id"}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("Save kept %d columns, want 1", len(saved))
	}

	cols, err := cs.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var text Column
	for _, c := range cols {
		if c.ID == "colText" {
			text = c
		}
	}
	if text.Width != "30rem" || !text.Visible {
		t.Errorf("colText = %+v", text)
	}

	setsBefore := store.sets
	if _, err := cs.Load(ctx); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if store.sets != setsBefore {
		t.Errorf("unchanged Load wrote %d times", store.sets-setsBefore)
	}
}

func TestValidColumnWidth(t *testing.T) {
	tests := []struct {
		width string
		want  bool
	}{
		{"8rem", true},
		{"12.5rem", true},
		{"120px", true},
		{"25%", true},
		{"", false},
		{"rem", false},
		{"8 rem", false},
		{"8em", false},
		{"1px;color:red", false},
		{"calc(1px)", false},
	}

	for _, tt := range tests {
		t.Run(tt.width, func(t *testing.T) {
			if got := ValidColumnWidth(tt.width); got != tt.want {
				t.Errorf("ValidColumnWidth(%q) = %v, want %v", tt.width, got, tt.want)
			}
		})
	}
}

func TestColumnSettings_SaveDropsInvalidWidth(t *testing.T) {
	cs := NewColumnSettings(newMapStore(), "", DefaultRetryPolicy)

	saved, err := cs.Save(context.Background(), []Column{
		{ID: "colText", Width: " 30rem "},
		{ID: "colCounter", Width: `5rem" onmouseover="x`},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved[0].Width != "30rem" {
		t.Errorf("colText width = %q, want 30rem", saved[0].Width)
	}
	if saved[1].Width != "" {
		t.Errorf("colCounter width = %q, want empty", saved[1].Width)
	}
}

func TestColumnSettings_Reset(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	cs := NewColumnSettings(store, "", DefaultRetryPolicy)

	if _, err := cs.Save(ctx, []Column{{ID: "x"}}); err != nil {
		t.Fatal(err)
	}
	cols, err := cs.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(cols) != len(DefaultColumns()) {
		t.Errorf("Reset returned %d columns", len(cols))
	}
}

func TestColumnSettings_LoadWithRetry(t *testing.T) {
	store := newMapStore()
	store.failGet = 2
	cs := NewColumnSettings(store, "", RetryPolicy{MaxAttempts: 5, Delay: time.Millisecond})

	cols, err := cs.LoadWithRetry(context.Background())
	if err != nil {
		t.Fatalf("LoadWithRetry: %v", err)
	}
	if len(cols) == 0 {
		t.Error("expected columns")
	}

	store.failGet = 10
	cs = NewColumnSettings(store, "", RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond})
	if _, err := cs.LoadWithRetry(context.Background()); err == nil {
		t.Error("expected error after attempts ran out")
	}
}
