package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/types"
)

// PersistenceError wraps a snapshot write failure. It is always treated
// as non-critical: callers log it and continue.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist snapshot to %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persister writes run snapshots to deployments/<orchestration_id>.json.
// Writes are asynchronous and best-effort; a failed write is retried a
// few times and then logged as a warning. It never propagates an error
// into the deployment path.
type Persister struct {
	// Dir is the directory snapshots are written under
	Dir string

	// Attempts and Delay control the best-effort retry
	Attempts int
	Delay    time.Duration

	mu      sync.Mutex
	pending sync.WaitGroup
	logger  zerolog.Logger
}

// NewPersister creates a persister writing under dir
func NewPersister(dir string) *Persister {
	return &Persister{
		Dir:      dir,
		Attempts: 3,
		Delay:    200 * time.Millisecond,
		logger:   log.WithComponent("persist"),
	}
}

func (p *Persister) path(orchestrationID string) string {
	return filepath.Join(p.Dir, orchestrationID+".json")
}

// Save writes a snapshot synchronously
func (p *Persister) Save(snap *types.RunSnapshot) error {
	// Serialize writers so concurrent saves of the same run cannot
	// interleave partial content
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.save(snap)
}

func (p *Persister) save(snap *types.RunSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &PersistenceError{Path: p.path(snap.OrchestrationID), Err: err}
	}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return &PersistenceError{Path: p.Dir, Err: err}
	}

	dest := p.path(snap.OrchestrationID)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &PersistenceError{Path: dest, Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return &PersistenceError{Path: dest, Err: err}
	}
	return nil
}

// SaveAsync schedules a best-effort snapshot write. Failures are logged,
// never returned.
func (p *Persister) SaveAsync(snap *types.RunSnapshot) {
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()

		attempts := p.Attempts
		if attempts < 1 {
			attempts = 1
		}
		var err error
		for i := 0; i < attempts; i++ {
			if i > 0 {
				time.Sleep(p.Delay)
			}
			if err = p.Save(snap); err == nil {
				return
			}
		}
		p.logger.Warn().Err(err).
			Str("orchestration_id", snap.OrchestrationID).
			Msg("snapshot persistence failed; in-memory state remains authoritative")
	}()
}

// Wait blocks until all scheduled writes have finished
func (p *Persister) Wait() {
	p.pending.Wait()
}

// Load reads a previously persisted snapshot
func (p *Persister) Load(orchestrationID string) (*types.RunSnapshot, error) {
	data, err := os.ReadFile(p.path(orchestrationID))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", orchestrationID, err)
	}
	var snap types.RunSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", orchestrationID, err)
	}
	return &snap, nil
}
