package search_test

import (
	"testing"

	"github.com/reviewstudio/studio/internal/search"
	"github.com/reviewstudio/studio/internal/store"
	"github.com/reviewstudio/studio/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *search.Engine {
	t.Helper()
	records, err := store.NewRecordStore()
	require.NoError(t, err)
	return search.NewEngine(records)
}

func keys(hits []models.SearchHit, field string) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Record.String(field))
	}
	return out
}

func TestSearchAll_BlankQuery(t *testing.T) {
	e := newEngine(t)
	for _, q := range []string{"", "   ", "\t\n"} {
		res := e.SearchAll(q)
		require.Len(t, res, 4)
		for _, c := range models.Collections {
			assert.NotNil(t, res[c], "collection %s", c)
			assert.Empty(t, res[c], "collection %s", c)
		}
	}
}

func TestSearchAll_ThresholdAndOrdering(t *testing.T) {
	e := newEngine(t)
	res := e.SearchAll("StapleWave SW-45")

	for _, c := range models.Collections {
		hits := res[c]
		for i, h := range hits {
			assert.GreaterOrEqual(t, h.Score, float64(search.PrimaryThreshold))
			assert.LessOrEqual(t, h.Score, 100.0)
			assert.Equal(t, c, h.Collection)
			if i > 0 {
				assert.GreaterOrEqual(t, hits[i-1].Score, h.Score, "%s not sorted at %d", c, i)
			}
		}
	}

	assert.Equal(t, []string{"K240305", "K240402"}, keys(res[models.CollectionClearance], "k_number"))
	assert.Equal(t, []string{"Z-0421-2024"}, keys(res[models.CollectionRecall], "recall_number"))
	assert.Equal(t, []string{"MDR-2024-000001"}, keys(res[models.CollectionAdverseEvent], "adverse_event_id"))
}

func TestSearchAll_CaseAndWhitespaceInsensitive(t *testing.T) {
	e := newEngine(t)
	a := e.SearchAll("gag")
	b := e.SearchAll("  GAG ")
	for _, c := range models.Collections {
		assert.Equal(t, len(a[c]), len(b[c]), "collection %s", c)
	}
}

func TestSearchAll_PredicateExpansion(t *testing.T) {
	e := newEngine(t)
	hits := e.SearchAll("K240123")[models.CollectionClearance]

	require.NotEmpty(t, hits)
	assert.Equal(t, "K240123", hits[0].Record.String("k_number"))

	ks := keys(hits, "k_number")
	assert.Contains(t, ks[1:], "K201111")
	assert.Contains(t, ks[1:], "K210455")
	// Expansion hits come after the primary ranking.
	assert.Equal(t, []string{"K201111", "K210455"}, ks[len(ks)-2:])
}

func TestSearchAll_NoExpansionWithoutExactKNumber(t *testing.T) {
	e := newEngine(t)
	ks := keys(e.SearchAll("FlowPilot FP-2")[models.CollectionClearance], "k_number")
	assert.Contains(t, ks, "K240123")
	assert.NotContains(t, ks, "K210455")
}

func TestFuzzyHits_Truncates(t *testing.T) {
	rows := make([]map[string]any, 0, 40)
	for i := 0; i < 40; i++ {
		rows = append(rows, map[string]any{"k_number": "K000000", "device_name": "Widget"})
	}
	records := store.NewRecordStoreFromMaps(map[models.Collection][]map[string]any{models.CollectionClearance: rows})
	e := search.NewEngine(records)

	assert.Len(t, e.Search(models.CollectionClearance, "widget"), search.PrimaryLimit)
	assert.Len(t, search.FuzzyHits(models.CollectionClearance, records.Records(models.CollectionClearance),
		[]string{"k_number"}, "K000000", search.PredicateThreshold, search.PredicateLimit), search.PredicateLimit)
}

func TestFuzzyHits_StableOnTies(t *testing.T) {
	records := store.NewRecordStoreFromMaps(map[models.Collection][]map[string]any{
		models.CollectionRecall: {
			{"recall_number": "Z-1", "firm_name": "Acme"},
			{"recall_number": "Z-2", "firm_name": "Acme"},
			{"recall_number": "Z-3", "firm_name": "Acme"},
		},
	})
	hits := search.NewEngine(records).Search(models.CollectionRecall, "acme")
	assert.Equal(t, []string{"Z-1", "Z-2", "Z-3"}, keys(hits, "recall_number"))
}

func TestFuzzyHits_NormalizesCompatibilityForms(t *testing.T) {
	records := store.NewRecordStoreFromMaps(map[models.Collection][]map[string]any{
		models.CollectionClearance: {{"k_number": "K240123"}},
	})
	// Full-width digits fold to ASCII.
	hits := search.NewEngine(records).Search(models.CollectionClearance, "Ｋ２４０１２３")
	require.Len(t, hits, 1)
	assert.Equal(t, 100.0, hits[0].Score)
}
