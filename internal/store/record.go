// Package store persists boards. A board is stored as one Record holding its
// committed elements, its history log and the cursor into it, in either the
// legacy snapshot-only encoding or the current patch-capable one.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/inamate/whiteboard/internal/element"
	"github.com/inamate/whiteboard/internal/history"
)

// Record encodings.
const (
	V1 = 1 // history is a list of full element lists
	V2 = 2 // history is a list of snapshot and patch entries
)

var (
	ErrNotFound           = errors.New("board not found")
	ErrUnsupportedVersion = errors.New("unsupported record version")
)

// Record is the persisted form of a board. History holds the log of a V2
// record and Legacy the log of a V1 record; the other is nil.
type Record struct {
	Version      int
	ID           string
	Elements     []element.Element
	History      []history.Entry
	Legacy       history.V1
	HistoryIndex int
	MaxHistory   int
	UpdatedAt    time.Time
}

type wireRecord struct {
	Version      int               `json:"version,omitempty"`
	ID           string            `json:"id"`
	Elements     []element.Element `json:"elements"`
	History      json.RawMessage   `json:"history,omitempty"`
	HistoryIndex int               `json:"historyIndex"`
	MaxHistory   int               `json:"maxHistory,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt,omitzero"`
}

// MarshalJSON writes the record in the encoding named by Version. A zero
// Version is written as V2.
func (r Record) MarshalJSON() ([]byte, error) {
	w := wireRecord{
		Version:      r.Version,
		ID:           r.ID,
		Elements:     r.Elements,
		HistoryIndex: r.HistoryIndex,
		MaxHistory:   r.MaxHistory,
		UpdatedAt:    r.UpdatedAt,
	}
	if w.Elements == nil {
		w.Elements = []element.Element{}
	}

	var (
		hist any
		err  error
	)
	switch r.Version {
	case V1:
		hist = r.Legacy
	case 0, V2:
		w.Version = V2
		hist = r.History
	default:
		return nil, fmt.Errorf("encode record %s: version %d: %w", r.ID, r.Version, ErrUnsupportedVersion)
	}
	if w.History, err = json.Marshal(hist); err != nil {
		return nil, fmt.Errorf("encode record %s: %w", r.ID, err)
	}
	return json.Marshal(w)
}

// UnmarshalJSON reads either encoding. Records written before the version
// field existed are recognized by the shape of their history.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	version := w.Version
	if version == 0 {
		version = sniffVersion(w.History)
	}

	out := Record{
		Version:      version,
		ID:           w.ID,
		Elements:     w.Elements,
		HistoryIndex: w.HistoryIndex,
		MaxHistory:   w.MaxHistory,
		UpdatedAt:    w.UpdatedAt,
	}
	hasHistory := len(w.History) > 0 && !bytes.Equal(w.History, []byte("null"))
	switch version {
	case V1:
		if hasHistory {
			if err := json.Unmarshal(w.History, &out.Legacy); err != nil {
				return fmt.Errorf("decode v1 history: %w", err)
			}
		}
	case V2:
		if hasHistory {
			if err := json.Unmarshal(w.History, &out.History); err != nil {
				return fmt.Errorf("decode v2 history: %w", err)
			}
		}
	default:
		return fmt.Errorf("decode record %s: version %d: %w", w.ID, version, ErrUnsupportedVersion)
	}
	*r = out
	return nil
}

// sniffVersion tells the encodings apart by their first history item: an
// array in V1, an object in V2.
func sniffVersion(raw json.RawMessage) int {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return V2
	}
	rest := bytes.TrimSpace(raw[1:])
	if len(rest) > 0 && rest[0] == '[' {
		return V1
	}
	return V2
}

// Upgrade returns the record in the V2 encoding. A V1 log is converted with
// history.ToV2; V2 records are returned unchanged.
func (r Record) Upgrade() (Record, error) {
	switch r.Version {
	case 0, V2:
		r.Version = V2
		return r, nil
	case V1:
		entries, index := history.ToV2(r.Legacy, r.HistoryIndex)
		r.Version = V2
		r.History = entries
		r.HistoryIndex = index
		r.Legacy = nil
		return r, nil
	default:
		return r, fmt.Errorf("upgrade record %s: version %d: %w", r.ID, r.Version, ErrUnsupportedVersion)
	}
}

// Downgrade returns the record in the V1 encoding, expanding every entry
// into a full snapshot.
func (r Record) Downgrade() (Record, error) {
	r, err := r.Upgrade()
	if err != nil {
		return r, err
	}
	legacy, err := history.ToV1(r.History)
	if err != nil {
		return r, fmt.Errorf("downgrade record %s: %w", r.ID, err)
	}
	r.Version = V1
	r.Legacy = legacy
	r.History = nil
	return r, nil
}

// Encode is json.Marshal(rec).
func Encode(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

// Decode parses a record in either encoding.
func Decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
