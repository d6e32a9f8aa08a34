package state

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/drydock-sh/drydock/pkg/types"
)

var (
	// Bucket names
	bucketRuns  = []byte("runs")
	bucketIndex = []byte("run_index")
)

// RunRecord is the compact per-run entry kept in the history index
type RunRecord struct {
	OrchestrationID string            `json:"orchestration_id"`
	Environment     types.Environment `json:"environment"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         *time.Time        `json:"end_time"`
	DryRun          bool              `json:"dry_run"`
	Summary         types.RunSummary  `json:"summary"`
}

// HistoryStore keeps finished run snapshots in a local BoltDB file so
// past runs can be listed and inspected without scanning the JSON
// snapshot directory
type HistoryStore struct {
	db *bolt.DB
}

// OpenHistory opens (creating if needed) the run-history database under
// dataDir
func OpenHistory(dataDir string) (*HistoryStore, error) {
	dbPath := filepath.Join(dataDir, "drydock.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketRuns, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryStore{db: db}, nil
}

// Close closes the database
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// PutRun stores (or replaces) a run snapshot and its index record
func (s *HistoryStore) PutRun(snap *types.RunSnapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		full, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketRuns).Put([]byte(snap.OrchestrationID), full); err != nil {
			return err
		}

		record := RunRecord{
			OrchestrationID: snap.OrchestrationID,
			Environment:     snap.Environment,
			StartTime:       snap.StartTime,
			EndTime:         snap.EndTime,
			DryRun:          snap.Metadata.DryRun,
			Summary:         snap.Summary,
		}
		idx, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketIndex).Put([]byte(snap.OrchestrationID), idx)
	})
}

// GetRun retrieves a full run snapshot by orchestration ID
func (s *HistoryStore) GetRun(orchestrationID string) (*types.RunSnapshot, error) {
	var snap types.RunSnapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(orchestrationID))
		if data == nil {
			return fmt.Errorf("run not found: %s", orchestrationID)
		}
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListRuns returns all recorded runs, newest first
func (s *HistoryStore) ListRuns() ([]RunRecord, error) {
	var records []RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIndex).ForEach(func(k, v []byte) error {
			var record RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartTime.After(records[j].StartTime)
	})
	return records, nil
}

// DeleteRun removes a run from the history
func (s *HistoryStore) DeleteRun(orchestrationID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketRuns).Delete([]byte(orchestrationID)); err != nil {
			return err
		}
		return tx.Bucket(bucketIndex).Delete([]byte(orchestrationID))
	})
}
