// Package store holds the read-only regulatory record snapshot and the run
// journal. Records are embedded in the binary; the journal is in memory or a
// single SQLite file.
package store

import (
	"context"

	"github.com/reviewstudio/studio/pkg/models"
)

// RecordStore serves the four read-only record collections.
// Iteration order is stable for the lifetime of the process.
type RecordStore interface {
	Records(c models.Collection) []models.Record
	Count(c models.Collection) int
}

// TraceStore is the run journal: one entry per step attempt.
type TraceStore interface {
	CreateTrace(ctx context.Context, trace *models.Trace) error
	GetTrace(ctx context.Context, id string) (*models.Trace, error)
	// ListTraces returns the newest traces first. An empty sessionID lists all sessions.
	ListTraces(ctx context.Context, sessionID string, limit int) ([]models.Trace, error)
	DeleteSessionTraces(ctx context.Context, sessionID string) error
	Close() error
}

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// Schemas lists the full field set of each collection in declared order.
var Schemas = map[models.Collection][]string{
	models.CollectionClearance: {
		"k_number", "decision_date", "decision", "device_name", "applicant",
		"manufacturer_name", "product_code", "regulation_number", "device_class",
		"panel", "review_advisory_committee", "predicate_k_numbers", "summary",
	},
	models.CollectionAdverseEvent: {
		"adverse_event_id", "report_date", "event_type", "patient_outcome",
		"device_problem", "manufacturer_name", "brand_name", "product_code",
		"device_class", "udi_di", "recall_number_link", "narrative",
	},
	models.CollectionDeviceIdentifier: {
		"primary_di", "udi_di", "device_description", "device_class",
		"manufacturer_name", "brand_name", "product_code", "gmdn_term",
		"mri_safety", "sterile", "single_use", "implantable", "contains_nrl",
		"version_or_model_number", "catalog_number", "record_status",
		"publish_date", "company_contact_email", "company_contact_phone",
		"company_state", "company_country",
	},
	models.CollectionRecall: {
		"recall_number", "recall_class", "event_date", "termination_date",
		"status", "firm_name", "manufacturer_name", "product_description",
		"product_code", "code_info", "reason_for_recall", "distribution_pattern",
		"quantity_in_commerce", "country", "state",
	},
}
