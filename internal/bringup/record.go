package bringup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Record is the persisted summary of one bring-up run, written under the
// state directory so `barebox-bringup runs` can show what happened on
// this machine.
type Record struct {
	ID          string     `json:"id"`
	Role        string     `json:"role"`
	Place       string     `json:"place,omitempty"`
	ConfigFile  string     `json:"config_file"`
	OutputFile  string     `json:"output_file,omitempty"`
	Interactive bool       `json:"interactive"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ExitReason  string     `json:"exit_reason,omitempty"`
}

// NewRecord starts a record for a run beginning now.
func NewRecord(role, configFile string) *Record {
	return &Record{
		ID:         uuid.NewString(),
		Role:       role,
		ConfigFile: configFile,
		StartedAt:  time.Now().UTC(),
	}
}

// Finish stamps the record with its outcome.
func (r *Record) Finish(reason string) {
	now := time.Now().UTC()
	r.FinishedAt = &now
	r.ExitReason = reason
}

// RecordStore persists run records as JSON files in a directory.
type RecordStore struct {
	dir string
}

// NewRecordStore creates the store under stateDir.
func NewRecordStore(stateDir string) (*RecordStore, error) {
	dir := filepath.Join(stateDir, "runs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create runs directory: %w", err)
	}
	return &RecordStore{dir: dir}, nil
}

// Save writes (or rewrites) a record.
func (s *RecordStore) Save(r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	path := filepath.Join(s.dir, r.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run record: %w", err)
	}
	return nil
}

// Load reads a record by ID.
func (s *RecordStore) Load(id string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run record not found: %s", id)
		}
		return nil, fmt.Errorf("read run record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal run record: %w", err)
	}
	return &r, nil
}

// List returns all records, skipping unreadable entries.
func (s *RecordStore) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read runs directory: %w", err)
	}
	var records []*Record
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		r, err := s.Load(entry.Name()[:len(entry.Name())-len(".json")])
		if err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}
