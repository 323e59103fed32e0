// Package state persists the per-VM processing records that make repeat
// reconciliation runs idempotent.
package state

import (
	"encoding/json"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Action records what a reconciliation pass did to a VM.
type Action string

const (
	ActionPingEnabled    Action = "ping_enabled"
	ActionAlreadyEnabled Action = "already_enabled"
	ActionUnknown        Action = "unknown"
)

// Record is the durable memory of having examined one VM. FirstProcessed is
// written once; LastProcessed moves forward on every successful pass.
type Record struct {
	Name           string    `json:"name"`
	FirstProcessed time.Time `json:"first_processed"`
	LastProcessed  time.Time `json:"last_processed"`
	Source         string    `json:"source"`
	Action         Action    `json:"action"`
}

// Store holds the snapshot of processing records and writes it back to a
// JSON file as a whole on every checkpoint.
type Store struct {
	path    string
	source  string
	records map[string]Record
}

// NewStore creates a store backed by the given snapshot file. The source tag
// is stamped into every record written by this process.
func NewStore(path string) *Store {
	source, err := os.Hostname()
	if err != nil {
		source = "unknown-host"
	}

	return &Store{
		path:    path,
		source:  source,
		records: make(map[string]Record),
	}
}

// Load reads the snapshot file. Missing and malformed files both fall back
// to an empty snapshot; load never fails.
func (s *Store) Load() {
	s.records = make(map[string]Record)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("No existing state file found, starting fresh")
		} else {
			log.WithError(err).WithField("path", s.path).Warn("Failed to read state file, starting fresh")
		}
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		log.WithError(err).WithField("path", s.path).Warn("Corrupted state file found, starting fresh")
		return
	}

	for id, entry := range raw {
		record, ok := normalize(entry)
		if !ok {
			log.WithField("vm_id", id).Warn("Dropping unreadable state entry")
			continue
		}
		s.records[id] = record
	}

	log.WithFields(log.Fields{
		"path":    s.path,
		"entries": len(s.records),
	}).Debug("Loaded state file")
}

// normalize upgrades a raw snapshot entry to the current record shape.
// Two legacy encodings survive in deployed state files: a bare ISO
// timestamp string, and a record object missing the action field (with an
// optional boolean ping_enabled flag).
func normalize(entry json.RawMessage) (Record, bool) {
	var ts string
	if err := json.Unmarshal(entry, &ts); err == nil {
		stamp, perr := parseTimestamp(ts)
		if perr != nil {
			return Record{}, false
		}
		return Record{
			Name:           "Unknown",
			FirstProcessed: stamp,
			LastProcessed:  stamp,
			Source:         "legacy",
			Action:         ActionUnknown,
		}, true
	}

	var legacy struct {
		Name           string    `json:"name"`
		FirstProcessed time.Time `json:"first_processed"`
		LastProcessed  time.Time `json:"last_processed"`
		Source         string    `json:"source"`
		Action         *Action   `json:"action"`
		PingEnabled    *bool     `json:"ping_enabled"`
	}
	if err := json.Unmarshal(entry, &legacy); err != nil {
		return Record{}, false
	}

	record := Record{
		Name:           legacy.Name,
		FirstProcessed: legacy.FirstProcessed,
		LastProcessed:  legacy.LastProcessed,
		Source:         legacy.Source,
		Action:         ActionUnknown,
	}
	if record.Name == "" {
		record.Name = "Unknown"
	}
	if legacy.Action != nil {
		record.Action = *legacy.Action
	} else if legacy.PingEnabled != nil {
		if *legacy.PingEnabled {
			record.Action = ActionPingEnabled
		} else {
			record.Action = ActionAlreadyEnabled
		}
	}

	return record, true
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339Nano, Value: s}
}

// Save overwrites the snapshot file with the full record map. Failures are
// logged and swallowed so a checkpoint can never abort a batch.
func (s *Store) Save() {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		log.WithError(err).Error("Failed to marshal state snapshot")
		return
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		log.WithError(err).WithField("path", s.path).Error("Failed to save state file")
		return
	}

	log.WithFields(log.Fields{
		"path":    s.path,
		"entries": len(s.records),
	}).Debug("Saved state file")
}

// Contains reports whether the identifier maps to a valid processing record.
func (s *Store) Contains(id string) bool {
	record, ok := s.records[id]
	return ok && !record.FirstProcessed.IsZero()
}

// Get returns the record for an identifier, if present.
func (s *Store) Get(id string) (Record, bool) {
	record, ok := s.records[id]
	return record, ok
}

// Put writes or refreshes the record for a VM. FirstProcessed is preserved
// on existing records; LastProcessed always moves to now.
func (s *Store) Put(id, name string, action Action) {
	now := time.Now()

	record, ok := s.records[id]
	if !ok || record.FirstProcessed.IsZero() {
		record.FirstProcessed = now
	}
	record.Name = name
	record.LastProcessed = now
	record.Source = s.source
	record.Action = action

	s.records[id] = record
}

// Len returns the number of records in the snapshot.
func (s *Store) Len() int {
	return len(s.records)
}
