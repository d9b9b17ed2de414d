package manifest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesainslie/pregen/pkg/pregen/types"
)

// document is the on-disk JSON layout of a manifest.
type document struct {
	ID                  string                            `json:"id,omitempty"`
	CreatedAt           string                            `json:"created_at"`
	StorageType         string                            `json:"storage_type"`
	S3Endpoint          *string                           `json:"s3_endpoint"`
	S3Bucket            *string                           `json:"s3_bucket"`
	S3Prefix            string                            `json:"s3_prefix"`
	LocalRoot           *string                           `json:"local_root"`
	Collections         []string                          `json:"collections"`
	CollectionStats     map[string]*types.CollectionStats `json:"collection_stats"`
	Records             []*types.ImageRecord              `json:"records"`
	ScanDurationSeconds float64                           `json:"scan_duration_seconds"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MarshalJSON encodes the manifest in its document layout.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	collections := m.Collections
	if collections == nil {
		collections = []string{}
	}
	records := m.Records
	if records == nil {
		records = []*types.ImageRecord{}
	}
	stats := m.CollectionStats
	if stats == nil {
		stats = map[string]*types.CollectionStats{}
	}

	return json.Marshal(document{
		ID:                  m.ID,
		CreatedAt:           m.CreatedAt.Format(time.RFC3339Nano),
		StorageType:         m.Storage.Kind,
		S3Endpoint:          optional(m.Storage.Endpoint),
		S3Bucket:            optional(m.Storage.Bucket),
		S3Prefix:            m.Storage.Prefix,
		LocalRoot:           optional(m.Storage.LocalRoot),
		Collections:         collections,
		CollectionStats:     stats,
		Records:             records,
		ScanDurationSeconds: m.ScanDuration.Seconds(),
	})
}

// UnmarshalJSON decodes a manifest document. Statistics are rebuilt from the
// records so they always agree with them, whatever the document claims.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	created, err := types.ParseTimestamp(doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("created_at: %w", err)
	}

	kind := doc.StorageType
	if kind == "" {
		kind = types.StorageS3
	}
	prefix := doc.S3Prefix
	if prefix == "" {
		prefix = types.DefaultPrefix
	}

	*m = Manifest{
		ID:        doc.ID,
		CreatedAt: created,
		Storage: types.StorageInfo{
			Kind:      kind,
			Endpoint:  deref(doc.S3Endpoint),
			Bucket:    deref(doc.S3Bucket),
			Prefix:    prefix,
			LocalRoot: deref(doc.LocalRoot),
		},
		Collections:  doc.Collections,
		Records:      doc.Records,
		ScanDuration: time.Duration(doc.ScanDurationSeconds * float64(time.Second)),
	}

	for i, r := range m.Records {
		if r == nil {
			return fmt.Errorf("record %d is null", i)
		}
	}
	m.Recount()

	return nil
}
