package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Collection maps an entity name to its chronological records. A key is
// present only while it has at least one record.
type Collection map[string][]Record

// Append adds a record to the entity's sequence, creating the key on first
// use.
func (c Collection) Append(entity string, r Record) {
	c[entity] = append(c[entity], r)
}

// DeleteLast removes the newest record of the entity. When the sequence
// empties, the key is removed entirely. Returns false if the entity has no
// records.
func (c Collection) DeleteLast(entity string) bool {
	records, ok := c[entity]
	if !ok || len(records) == 0 {
		return false
	}
	records = records[:len(records)-1]
	if len(records) == 0 {
		delete(c, entity)
		return true
	}
	c[entity] = records
	return true
}

// Entities returns the entity names in sorted order.
func (c Collection) Entities() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalRecords counts records across all entities.
func (c Collection) TotalRecords() int {
	total := 0
	for _, records := range c {
		total += len(records)
	}
	return total
}

// Clone returns a deep copy, so callers can hand out snapshots without
// exposing the live map.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	for name, records := range c {
		cp := make([]Record, len(records))
		copy(cp, records)
		out[name] = cp
	}
	return out
}

// EntityStats are the aggregate figures shown for one entity.
type EntityStats struct {
	Entity     string  `json:"entity"`
	Plays      int     `json:"plays"`
	TotalFinal int64   `json:"total_final"`
	AvgBase    float64 `json:"avg_base"`
	AvgFinal   float64 `json:"avg_final"`
	AvgRate    float64 `json:"avg_rate"`
}

// Stats aggregates the entity's records. Zero stats for unknown entities.
func (c Collection) Stats(entity string) EntityStats {
	records := c[entity]
	st := EntityStats{Entity: entity, Plays: len(records)}
	if len(records) == 0 {
		return st
	}
	var base, final int64
	var rate float64
	for _, r := range records {
		base += r.Base
		final += r.Final
		rate += r.Rate
	}
	n := float64(len(records))
	st.TotalFinal = final
	st.AvgBase = float64(base) / n
	st.AvgFinal = float64(final) / n
	st.AvgRate = rate / n
	return st
}

// Encode writes the collection in the compatibility file format: UTF-8,
// 2-space indentation, HTML escaping off so non-ASCII entity names stay
// literal. Files written by earlier versions of the tool parse back
// byte-identically through Decode+Encode.
func (c Collection) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	return nil
}

// EncodeBytes renders the collection file format into memory.
func (c Collection) EncodeBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCollection parses the file format. nil input yields an empty
// collection; a non-object payload is an error.
func DecodeCollection(data []byte) (Collection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Collection{}, nil
	}
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	if c == nil {
		c = Collection{}
	}
	return c, nil
}
