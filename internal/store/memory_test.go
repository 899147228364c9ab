package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/reviewstudio/studio/internal/store"
	"github.com/reviewstudio/studio/pkg/models"
)

// ─── Record snapshot ─────────────────────────────────────────

func TestRecordStore_LoadsEmbeddedSnapshot(t *testing.T) {
	s, err := store.NewRecordStore()
	if err != nil {
		t.Fatalf("NewRecordStore() error = %v", err)
	}

	want := map[models.Collection]int{
		models.CollectionClearance:        9,
		models.CollectionAdverseEvent:     10,
		models.CollectionDeviceIdentifier: 12,
		models.CollectionRecall:           10,
	}
	for c, n := range want {
		if got := s.Count(c); got != n {
			t.Errorf("Count(%s) = %d, want %d", c, got, n)
		}
	}
}

func TestRecordStore_FullFieldSet(t *testing.T) {
	s, err := store.NewRecordStore()
	if err != nil {
		t.Fatalf("NewRecordStore() error = %v", err)
	}

	for _, c := range models.Collections {
		for i, r := range s.Records(c) {
			for _, f := range store.Schemas[c] {
				if _, ok := r.Get(f); !ok {
					t.Errorf("%s[%d] missing field %q", c, i, f)
				}
			}
		}
	}
}

func TestRecordStore_StableOrder(t *testing.T) {
	s, err := store.NewRecordStore()
	if err != nil {
		t.Fatalf("NewRecordStore() error = %v", err)
	}

	first := s.Records(models.CollectionClearance)
	second := s.Records(models.CollectionClearance)
	for i := range first {
		if first[i].String("k_number") != second[i].String("k_number") {
			t.Fatalf("order changed at %d: %q vs %q", i, first[i].String("k_number"), second[i].String("k_number"))
		}
	}
	if got := first[0].String("k_number"); got != "K240123" {
		t.Errorf("first clearance = %q, want K240123", got)
	}
}

func TestRecordStore_NullsAndNumbers(t *testing.T) {
	s, err := store.NewRecordStore()
	if err != nil {
		t.Fatalf("NewRecordStore() error = %v", err)
	}

	recalls := s.Records(models.CollectionRecall)
	if got := recalls[0].String("recall_number"); got != "Z-0421-2024" {
		t.Fatalf("first recall = %q", got)
	}
	if v, _ := recalls[0].Get("termination_date"); v != nil {
		t.Errorf("termination_date = %v, want nil", v)
	}
	if got := recalls[0].String("quantity_in_commerce"); got == "" {
		t.Error("quantity_in_commerce should render as text")
	}

	preds := s.Records(models.CollectionClearance)[0].Strings("predicate_k_numbers")
	if len(preds) != 2 || preds[0] != "K201111" || preds[1] != "K210455" {
		t.Errorf("predicate_k_numbers = %v", preds)
	}
}

func TestRecordStoreFromMaps_WidensMissingFields(t *testing.T) {
	s := store.NewRecordStoreFromMaps(map[models.Collection][]map[string]any{
		models.CollectionRecall: {{"recall_number": "Z-1", "extra": "ignored"}},
	})

	r := s.Records(models.CollectionRecall)[0]
	if v, ok := r.Get("recall_class"); !ok || v != nil {
		t.Errorf("recall_class = (%v, %v), want (nil, true)", v, ok)
	}
	if _, ok := r.Get("extra"); ok {
		t.Error("fields outside the schema should be dropped")
	}
	if s.Count(models.CollectionClearance) != 0 {
		t.Error("absent collections should be empty")
	}
}

// ─── Journal ─────────────────────────────────────────────────

func journalStores(t *testing.T) map[string]store.TraceStore {
	t.Helper()
	mem := store.NewMemoryTraceStore(0)
	sq, err := store.NewSQLiteTraceStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("NewSQLiteTraceStore() error = %v", err)
	}
	t.Cleanup(func() {
		mem.Close()
		sq.Close()
	})
	return map[string]store.TraceStore{"memory": mem, "sqlite": sq}
}

func TestTraceStore_CreateListDelete(t *testing.T) {
	for name, s := range journalStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

			for i, sid := range []string{"s1", "s1", "s2"} {
				err := s.CreateTrace(ctx, &models.Trace{
					ID:        "t" + string(rune('a'+i)),
					SessionID: sid,
					AgentID:   "summarize",
					AgentName: "Summarize",
					Position:  i + 1,
					Status:    models.StepSuccess,
					Provider:  models.ProviderOpenAI,
					Model:     "gpt-4o-mini",
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				})
				if err != nil {
					t.Fatalf("CreateTrace() error = %v", err)
				}
			}

			got, err := s.ListTraces(ctx, "s1", 0)
			if err != nil {
				t.Fatalf("ListTraces() error = %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("ListTraces(s1) len = %d, want 2", len(got))
			}
			if got[0].ID != "tb" {
				t.Errorf("newest first: got %q, want tb", got[0].ID)
			}

			all, _ := s.ListTraces(ctx, "", 1)
			if len(all) != 1 || all[0].ID != "tc" {
				t.Errorf("ListTraces(all, 1) = %+v", all)
			}

			tr, err := s.GetTrace(ctx, "ta")
			if err != nil {
				t.Fatalf("GetTrace() error = %v", err)
			}
			if tr.Provider != models.ProviderOpenAI || tr.Status != models.StepSuccess {
				t.Errorf("GetTrace() = %+v", tr)
			}

			if err := s.DeleteSessionTraces(ctx, "s1"); err != nil {
				t.Fatalf("DeleteSessionTraces() error = %v", err)
			}
			left, _ := s.ListTraces(ctx, "", 0)
			if len(left) != 1 || left[0].SessionID != "s2" {
				t.Errorf("after delete = %+v", left)
			}
		})
	}
}

func TestTraceStore_GetMissing(t *testing.T) {
	for name, s := range journalStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetTrace(context.Background(), "nope")
			var nf *store.ErrNotFound
			if !errors.As(err, &nf) {
				t.Fatalf("GetTrace() error = %v, want ErrNotFound", err)
			}
		})
	}
}
