// Package resolver links search results into a single device view.
//
// The best clearance hit anchors the view. Adverse events, device identifiers
// and recalls that share its product code are joined to it, and the most
// severe recall class is reported.
package resolver

import (
	"sort"
	"strings"

	"github.com/reviewstudio/studio/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	maxRecalls       = 8
	maxMDRExamples   = 6
	maxGUDIDExamples = 6
	// fallbackSample is how many unfiltered hits are taken when the anchor
	// clearance has a device name but no product code.
	fallbackSample = 5
)

// recallSeverity ranks recall classes; unknown classes rank 0.
var recallSeverity = map[string]int{"I": 3, "II": 2, "III": 1}

// Searcher runs the cross-collection search.
type Searcher interface {
	SearchAll(query string) models.SearchResults
}

// Resolver builds device views on top of a Searcher.
type Resolver struct {
	search Searcher
}

// NewResolver creates a new linkage resolver.
func NewResolver(s Searcher) *Resolver {
	return &Resolver{search: s}
}

// DeviceView searches for query and links the results.
func (r *Resolver) DeviceView(query string) models.DeviceView {
	view := Link(r.search.SearchAll(query))
	log.Debug().
		Str("query", query).
		Int("recalls", len(view.Recalls)).
		Int("mdr_count", view.MDRCount).
		Msg("Device view resolved")
	return view
}

// Link joins already-ranked search results into a DeviceView.
//
// When the anchor clearance carries a device name but no product code, the
// first few hits of each collection are returned unfiltered. Those hits are
// not necessarily related to the device.
func Link(results models.SearchResults) models.DeviceView {
	view := models.DeviceView{
		Recalls:       []models.Record{},
		MDRExamples:   []models.Record{},
		GUDIDExamples: []models.Record{},
	}

	clearances := results[models.CollectionClearance]
	if len(clearances) == 0 {
		return view
	}
	top := clearances[0].Record
	view.TopClearance = &top

	productCode := top.String("product_code")
	deviceName := top.String("device_name")

	var recalls, mdrs, gudid []models.Record
	switch {
	case productCode != "":
		recalls = byProductCode(results[models.CollectionRecall], productCode)
		mdrs = byProductCode(results[models.CollectionAdverseEvent], productCode)
		gudid = byProductCode(results[models.CollectionDeviceIdentifier], productCode)
	case deviceName != "":
		recalls = firstN(results[models.CollectionRecall], fallbackSample)
		mdrs = firstN(results[models.CollectionAdverseEvent], fallbackSample)
		gudid = firstN(results[models.CollectionDeviceIdentifier], fallbackSample)
	}

	view.TopRecallClass = worstRecallClass(recalls)
	view.MDRCount = len(mdrs)
	view.Recalls = capRecords(recalls, maxRecalls)
	view.MDRExamples = capRecords(mdrs, maxMDRExamples)
	view.GUDIDExamples = capRecords(gudid, maxGUDIDExamples)
	return view
}

func byProductCode(hits []models.SearchHit, code string) []models.Record {
	out := []models.Record{}
	for _, h := range hits {
		if h.Record.String("product_code") == code {
			out = append(out, h.Record)
		}
	}
	return out
}

func firstN(hits []models.SearchHit, n int) []models.Record {
	out := []models.Record{}
	for i := 0; i < len(hits) && i < n; i++ {
		out = append(out, hits[i].Record)
	}
	return out
}

func capRecords(recs []models.Record, n int) []models.Record {
	if recs == nil {
		return []models.Record{}
	}
	if len(recs) > n {
		return recs[:n]
	}
	return recs
}

// worstRecallClass returns the class of the most severe recall, keeping the
// first one seen on ties. Nil when there are no recalls.
func worstRecallClass(recalls []models.Record) *string {
	if len(recalls) == 0 {
		return nil
	}
	sorted := append([]models.Record(nil), recalls...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return severity(sorted[i]) > severity(sorted[j])
	})
	class := sorted[0].String("recall_class")
	return &class
}

func severity(r models.Record) int {
	return recallSeverity[strings.ToUpper(r.String("recall_class"))]
}
