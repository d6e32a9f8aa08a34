package rollback

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drydock-sh/drydock/pkg/log"
	"github.com/drydock-sh/drydock/pkg/platform"
	"github.com/drydock-sh/drydock/pkg/types"
)

// DefaultBackupFiles is the fixed set of configuration files captured
// before a run. Absent files are skipped, not errors.
var DefaultBackupFiles = []string{
	"package.json",
	"wrangler.toml",
	".env",
	"portfolio.yaml",
}

// ManifestName is the manifest file written into the backup directory
const ManifestName = "backup-manifest.json"

// BackupOptions selects what state a pre-run backup captures
type BackupOptions struct {
	// IncludePlatform captures worker and secret listings (names only)
	IncludePlatform bool

	// IncludeDatabase captures the managed database listing
	IncludeDatabase bool

	// Files overrides DefaultBackupFiles when non-empty
	Files []string
}

// Backup captures pre-run state so a rollback can restore it
type Backup struct {
	Platform platform.Platform

	// WorkingDir is where the configuration files live
	WorkingDir string

	// BaseDir is the backup root; per-run files land under
	// <BaseDir>/configs/<run_id>/
	BaseDir string

	// RunID namespaces this run's backups
	RunID string
}

// Dir returns this run's backup directory
func (b *Backup) Dir() string {
	return filepath.Join(b.BaseDir, "configs", b.RunID)
}

// CreateStateBackup copies the configured files aside, captures textual
// platform and database listings (never secret values), writes the
// manifest, and returns one restore-file rollback action per copied
// file.
func (b *Backup) CreateStateBackup(ctx context.Context, opts BackupOptions) (*types.BackupManifest, []*types.RollbackAction, error) {
	logger := log.WithComponent("backup")

	dir := b.Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create backup directory: %w", err)
	}

	manifest := &types.BackupManifest{
		RunID:         b.RunID,
		CreatedAt:     time.Now().UTC(),
		PlatformState: make(map[string]string),
		DatabaseState: make(map[string]string),
	}

	files := opts.Files
	if len(files) == 0 {
		files = DefaultBackupFiles
	}

	var actions []*types.RollbackAction
	for _, name := range files {
		src := filepath.Join(b.WorkingDir, name)
		data, err := os.ReadFile(src)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, nil, fmt.Errorf("read %s for backup: %w", name, err)
		}

		dest := filepath.Join(dir, strings.ReplaceAll(name, string(filepath.Separator), "_"))
		if err := os.WriteFile(dest, data, 0600); err != nil {
			return nil, nil, fmt.Errorf("write backup of %s: %w", name, err)
		}

		manifest.Files = append(manifest.Files, types.BackupFile{
			OriginalPath: src,
			BackupPath:   dest,
			Timestamp:    time.Now().UTC(),
		})
		actions = append(actions, &types.RollbackAction{
			ID:           "restore-" + uuid.NewString(),
			Type:         types.RollbackRestoreFile,
			Priority:     types.PriorityRestoreFile,
			Description:  fmt.Sprintf("restore %s from pre-run backup", name),
			Critical:     true,
			OriginalPath: src,
			BackupPath:   dest,
		})
	}

	if opts.IncludePlatform {
		if workers, err := b.Platform.ListWorkers(ctx); err != nil {
			logger.Warn().Err(err).Msg("could not capture worker listing")
		} else {
			manifest.PlatformState["workers"] = workers
		}
		if secretNames, err := b.Platform.ListSecrets(ctx); err != nil {
			logger.Warn().Err(err).Msg("could not capture secret listing")
		} else {
			manifest.PlatformState["secrets"] = secretNames
		}
	}
	if opts.IncludeDatabase {
		if databases, err := b.Platform.ListDatabases(ctx); err != nil {
			logger.Warn().Err(err).Msg("could not capture database listing")
		} else {
			manifest.DatabaseState["databases"] = databases
		}
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal backup manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), data, 0644); err != nil {
		return nil, nil, fmt.Errorf("write backup manifest: %w", err)
	}

	logger.Info().
		Str("run_id", b.RunID).
		Int("files", len(manifest.Files)).
		Msg("state backup created")
	return manifest, actions, nil
}
