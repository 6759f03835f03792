// Package product holds catalog-side types: search candidates, canonical records and match results.
package product

import (
	"encoding/json"
	"maps"
	"strings"
)

// Metadata is the denormalized snapshot stored next to a product vector. It may be stale.
type Metadata struct {
	Name         string   `json:"name,omitempty"`
	Price        *float64 `json:"price,omitempty"`
	Category     string   `json:"category,omitempty"`
	AvailableQty *int     `json:"availableQty,omitempty"`
	LeadTime     *float64 `json:"leadTime,omitempty"`
	Geohash      string   `json:"geohash,omitempty"`
	Location     string   `json:"location,omitempty"`
}

// Candidate is one similarity search hit. Score is cosine similarity, nil when the backend omitted it.
type Candidate struct {
	ID       string
	Score    *float64
	Metadata Metadata
}

// Record is the canonical product document. Fields are passed through untouched.
type Record struct {
	ID     string
	Fields map[string]any
}

// MatchResult is a canonical record annotated with how well it matched.
type MatchResult struct {
	Record      Record
	MatchScore  float64
	VectorScore float64
}

// Reserved keys written over the record fields when a result is encoded.
const (
	KeyID          = "id"
	KeyMatchScore  = "matchScore"
	KeyVectorScore = "vectorScore"
)

// Fields returns the flat representation: record fields, then id and both scores.
func (m *MatchResult) Fields() map[string]any {
	out := make(map[string]any, len(m.Record.Fields)+3)
	maps.Copy(out, m.Record.Fields)
	out[KeyID] = m.Record.ID
	out[KeyMatchScore] = m.MatchScore
	out[KeyVectorScore] = m.VectorScore
	return out
}

// Name returns the record's name field when it is a string.
func (m *MatchResult) Name() string {
	if s, ok := m.Record.Fields["name"].(string); ok {
		return s
	}
	return ""
}

// MarshalJSON encodes the result as a single flat object.
func (m *MatchResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Fields())
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (m *MatchResult) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	id, _ := fields[KeyID].(string)
	ms, _ := fields[KeyMatchScore].(float64)
	vs, _ := fields[KeyVectorScore].(float64)
	delete(fields, KeyID)
	delete(fields, KeyMatchScore)
	delete(fields, KeyVectorScore)
	*m = MatchResult{Record: Record{ID: id, Fields: fields}, MatchScore: ms, VectorScore: vs}
	return nil
}

// IDFromKey strips a storage prefix from a key, e.g. "prodmatch:vec:p1" -> "p1".
func IDFromKey(key, prefix string) string {
	return strings.TrimPrefix(key, prefix)
}

// Filterable metadata fields, shared by the filter builder and every catalog backend.
const (
	FieldCategory     = "category"
	FieldAvailableQty = "availableQty"
	FieldLeadTime     = "leadTime"
)
