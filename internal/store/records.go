package store

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/reviewstudio/studio/pkg/models"
	"github.com/rs/zerolog/log"
)

//go:embed data/*.json
var snapshotFS embed.FS

// MemoryRecordStore keeps every collection as an ordered slice.
type MemoryRecordStore struct {
	collections map[models.Collection][]models.Record
}

// NewRecordStore loads the embedded snapshot.
func NewRecordStore() (*MemoryRecordStore, error) {
	raw := make(map[models.Collection][]map[string]any, len(models.Collections))
	for _, c := range models.Collections {
		data, err := snapshotFS.ReadFile("data/" + string(c) + ".json")
		if err != nil {
			return nil, fmt.Errorf("read %s snapshot: %w", c, err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var rows []map[string]any
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("decode %s snapshot: %w", c, err)
		}
		raw[c] = rows
	}
	s := NewRecordStoreFromMaps(raw)
	log.Info().
		Int("510k", s.Count(models.CollectionClearance)).
		Int("adr", s.Count(models.CollectionAdverseEvent)).
		Int("gudid", s.Count(models.CollectionDeviceIdentifier)).
		Int("recall", s.Count(models.CollectionRecall)).
		Msg("📚 Record snapshot loaded")
	return s, nil
}

// NewRecordStoreFromMaps builds a store from raw rows. Each row is widened to
// its collection's full schema; collections not given are empty.
func NewRecordStoreFromMaps(raw map[models.Collection][]map[string]any) *MemoryRecordStore {
	s := &MemoryRecordStore{collections: make(map[models.Collection][]models.Record, len(models.Collections))}
	for _, c := range models.Collections {
		rows := raw[c]
		records := make([]models.Record, 0, len(rows))
		for _, row := range rows {
			records = append(records, models.NewRecord(Schemas[c], row))
		}
		s.collections[c] = records
	}
	return s
}

// Records returns the collection in load order. The slice is a copy.
func (s *MemoryRecordStore) Records(c models.Collection) []models.Record {
	return append([]models.Record(nil), s.collections[c]...)
}

func (s *MemoryRecordStore) Count(c models.Collection) int {
	return len(s.collections[c])
}
