package jsonstate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/repowatch/internal/domain/model"
)

// LegacyFileName is the combined state file written before state was split
// per concern.
const LegacyFileName = "state.json"

const migratingSuffix = ".migrating"

// MigrationResult describes what MigrateLegacy did.
type MigrationResult struct {
	Migrated     bool
	ArchivePath  string
	Repositories int
}

// MigrateLegacy splits the combined legacy state file in dir into one file
// per concern. It does nothing when there is no legacy file or when any
// per-concern file already exists.
//
// Both documents are written to temp files and read back; only when each
// decodes to exactly what was intended are they renamed into place. The
// legacy file is then archived next to the new files, never deleted. On any
// failure the temp files are removed and the legacy file is left untouched.
func MigrateLegacy(_ context.Context, dir string, now time.Time) (MigrationResult, error) {
	legacyPath := filepath.Join(dir, LegacyFileName)

	data, err := os.ReadFile(legacyPath)
	if errors.Is(err, fs.ErrNotExist) {
		return MigrationResult{}, nil
	}
	if err != nil {
		return MigrationResult{}, fmt.Errorf("read legacy state: %w", err)
	}

	for _, concern := range model.Concerns {
		if _, err := os.Stat(filepath.Join(dir, FileName(concern))); err == nil {
			slog.Debug("legacy state ignored, split state already present", "path", legacyPath)
			return MigrationResult{}, nil
		}
	}

	combined, err := decode(legacyPath, data)
	if err != nil {
		return MigrationResult{}, err
	}

	parts := SplitLegacy(combined)

	var written []string
	cleanup := func() {
		for _, p := range written {
			_ = os.Remove(p)
		}
	}

	for _, concern := range model.Concerns {
		final := filepath.Join(dir, FileName(concern))
		tmp := final + migratingSuffix

		if err := writeValidated(tmp, parts[concern]); err != nil {
			_ = os.Remove(tmp)
			cleanup()
			return MigrationResult{}, fmt.Errorf("migrate %s state: %w", concern, err)
		}
		written = append(written, tmp)
	}

	var placed []string
	for _, concern := range model.Concerns {
		final := filepath.Join(dir, FileName(concern))
		if err := atomic.ReplaceFile(final+migratingSuffix, final); err != nil {
			for _, p := range placed {
				_ = os.Remove(p)
			}
			cleanup()
			return MigrationResult{}, fmt.Errorf("install %s state: %w", concern, err)
		}
		placed = append(placed, final)
	}

	archive := legacyPath + ".migrated-" + now.UTC().Format("20060102T150405Z")
	if err := os.Rename(legacyPath, archive); err != nil {
		// The split files are valid and in place; a leftover legacy file is
		// ignored on later runs because the split files exist.
		slog.Warn("could not archive legacy state", "path", legacyPath, "error", err)
		archive = ""
	}

	slog.Info("legacy state migrated",
		"repositories", len(combined),
		"archive", archive,
	)

	return MigrationResult{
		Migrated:     true,
		ArchivePath:  archive,
		Repositories: len(combined),
	}, nil
}

// SplitLegacy divides combined per-repository state into the news and forks
// concerns. Repositories with nothing to record for a concern are omitted
// from it.
func SplitLegacy(combined model.PersistedState) map[model.Concern]model.PersistedState {
	news := model.PersistedState{}
	forks := model.PersistedState{}

	for key, rs := range combined {
		if rs.LastCommit != "" || rs.LastRelease != "" || len(rs.Branches) > 0 || !rs.LastBranchCheck.IsZero() {
			news[key] = model.RepositoryState{
				LastCommit:      rs.LastCommit,
				LastRelease:     rs.LastRelease,
				LastCheck:       rs.LastCheck,
				Branches:        rs.Branches,
				LastBranchCheck: rs.LastBranchCheck,
			}
		}
		if len(rs.ProcessedForks) > 0 || !rs.LastForkCheck.IsZero() {
			forks[key] = model.RepositoryState{
				LastCheck:      rs.LastForkCheck,
				ProcessedForks: rs.ProcessedForks,
				LastForkCheck:  rs.LastForkCheck,
			}
		}
	}

	return map[model.Concern]model.PersistedState{
		model.ConcernNews:  news,
		model.ConcernForks: forks,
	}
}

// writeValidated writes state to path and reads it back, failing unless the
// re-read document encodes identically to the intended one.
func writeValidated(path string, state model.PersistedState) error {
	want, err := encode(state)
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, bytes.NewReader(want)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("re-read %s: %w", path, err)
	}

	reread, err := decode(path, data)
	if err != nil {
		return err
	}

	got, err := encode(reread)
	if err != nil {
		return err
	}

	if !bytes.Equal(got, want) {
		return fmt.Errorf("validate %s: content differs after write", path)
	}

	return nil
}
