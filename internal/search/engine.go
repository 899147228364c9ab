// Package search scores every record of every collection against a free-text
// query using partial-ratio similarity, and expands clearance results through
// predicate references.
package search

import (
	"sort"
	"strings"

	"github.com/reviewstudio/studio/internal/store"
	"github.com/reviewstudio/studio/pkg/models"
	"golang.org/x/text/unicode/norm"
)

const (
	PrimaryThreshold   = 75
	PrimaryLimit       = 25
	PredicateThreshold = 88
	PredicateLimit     = 10
)

// Fields is the searchable field subset of each collection.
var Fields = map[models.Collection][]string{
	models.CollectionClearance: {
		"k_number", "device_name", "applicant", "manufacturer_name", "product_code", "summary",
	},
	models.CollectionAdverseEvent: {
		"adverse_event_id", "brand_name", "manufacturer_name", "product_code", "udi_di", "device_problem", "narrative",
	},
	models.CollectionDeviceIdentifier: {
		"udi_di", "primary_di", "brand_name", "manufacturer_name", "product_code", "device_description", "gmdn_term",
	},
	models.CollectionRecall: {
		"recall_number", "firm_name", "manufacturer_name", "product_code", "reason_for_recall", "product_description",
	},
}

var predicateFields = []string{"k_number", "device_name"}

// Engine searches a record store. It keeps no state between queries.
type Engine struct {
	records store.RecordStore
}

func NewEngine(records store.RecordStore) *Engine {
	return &Engine{records: records}
}

// SearchAll returns ranked hits for every collection. A blank query yields
// four empty lists. When a clearance hit's k_number equals the query, hits for
// each of its predicates are appended to the clearance list.
func (e *Engine) SearchAll(query string) models.SearchResults {
	results := make(models.SearchResults, len(models.Collections))
	for _, c := range models.Collections {
		results[c] = []models.SearchHit{}
	}
	if strings.TrimSpace(query) == "" {
		return results
	}

	for _, c := range models.Collections {
		results[c] = e.Search(c, query)
	}

	clearances := e.records.Records(models.CollectionClearance)
	if anchor, ok := findAnchor(results[models.CollectionClearance], query); ok {
		for _, k := range anchor.Strings("predicate_k_numbers") {
			hits := FuzzyHits(models.CollectionClearance, clearances, predicateFields, k, PredicateThreshold, PredicateLimit)
			results[models.CollectionClearance] = append(results[models.CollectionClearance], hits...)
		}
	}
	return results
}

// Search runs the primary search over one collection.
func (e *Engine) Search(c models.Collection, query string) []models.SearchHit {
	return FuzzyHits(c, e.records.Records(c), Fields[c], query, PrimaryThreshold, PrimaryLimit)
}

func findAnchor(hits []models.SearchHit, query string) (models.Record, bool) {
	want := strings.ToUpper(strings.TrimSpace(query))
	for _, h := range hits {
		if strings.ToUpper(h.Record.String("k_number")) == want {
			return h.Record, true
		}
	}
	return models.Record{}, false
}

// FuzzyHits scores each record as the best partial ratio of the query over the
// given fields, keeps those at or above threshold, sorts them by descending
// score (stable) and truncates to limit.
func FuzzyHits(c models.Collection, records []models.Record, fields []string, query string, threshold float64, limit int) []models.SearchHit {
	q := normalize(query)
	hits := []models.SearchHit{}
	if q == "" {
		return hits
	}

	for _, r := range records {
		var best float64
		for _, f := range fields {
			v := normalize(r.String(f))
			if v == "" {
				continue
			}
			if s := PartialRatio(q, v); s > best {
				best = s
			}
		}
		if best >= threshold {
			hits = append(hits, models.SearchHit{Collection: c, Score: best, Record: r})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// normalize folds compatibility forms (full-width digits, ligatures) before
// lower-casing so pasted identifiers still match.
func normalize(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}
