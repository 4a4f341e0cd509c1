package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// RecoveryOutcome is the result of a startup recovery check.
type RecoveryOutcome int

const (
	RecoveryNotNeeded RecoveryOutcome = iota // missing file or passed the integrity check
	RecoveryWALReplayed
	RecoveryRestored
	RecoveryFailed
)

func (o RecoveryOutcome) String() string {
	switch o {
	case RecoveryNotNeeded:
		return "not_needed"
	case RecoveryWALReplayed:
		return "wal_replayed"
	case RecoveryRestored:
		return "restored_from_backup"
	case RecoveryFailed:
		return "failed"
	}
	return "unknown"
}

// RecoveryReport describes what Recover did to the ledger database.
type RecoveryReport struct {
	Outcome   RecoveryOutcome
	Path      string
	Backup    string // set when restored
	Preserved string // where the damaged file was moved
	Problems  []string
}

// Recover checks the database at path before it is opened. A damaged file
// is first given a WAL checkpoint; if that does not repair it, the newest
// backup in backupDir that passes an integrity check replaces it and the
// damaged file is kept beside it with a ".corrupted" suffix.
func Recover(ctx context.Context, path, backupDir string) (*RecoveryReport, error) {
	report := &RecoveryReport{Path: path}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return report, nil
	}

	err := checkIntegrity(ctx, path)
	if err == nil {
		return report, nil
	}
	report.Problems = append(report.Problems, err.Error())
	slog.Warn("ledger database failed integrity check", "path", path, "error", err)

	if _, statErr := os.Stat(path + "-wal"); statErr == nil {
		if err := checkpointWAL(ctx, path); err != nil {
			report.Problems = append(report.Problems, err.Error())
		} else if err := checkIntegrity(ctx, path); err == nil {
			report.Outcome = RecoveryWALReplayed
			slog.Info("ledger database repaired by WAL checkpoint", "path", path)
			return report, nil
		}
	}

	if backupDir != "" {
		backup, preserved, err := restoreLatestBackup(ctx, path, backupDir)
		if err == nil {
			report.Outcome = RecoveryRestored
			report.Backup = backup
			report.Preserved = preserved
			slog.Warn("ledger database restored from backup", "path", path, "backup", backup)
			return report, nil
		}
		report.Problems = append(report.Problems, err.Error())
	}

	report.Outcome = RecoveryFailed
	return report, fmt.Errorf("database %s is damaged and could not be recovered: %s",
		path, strings.Join(report.Problems, "; "))
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return fmt.Errorf("running integrity check: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return fmt.Errorf("scanning integrity result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading integrity results: %w", err)
	}

	if len(results) == 1 && results[0] == "ok" {
		return nil
	}
	return fmt.Errorf("integrity check failed: %s", strings.Join(results, "; "))
}

func checkpointWAL(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_txlock=immediate", path))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(RESTART)"); err != nil {
		return fmt.Errorf("WAL checkpoint: %w", err)
	}
	return nil
}

// restoreLatestBackup copies the newest healthy backup over path and
// returns the backup used and where the damaged file was moved.
func restoreLatestBackup(ctx context.Context, path, backupDir string) (string, string, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return "", "", fmt.Errorf("reading backup directory: %w", err)
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".db" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{filepath.Join(backupDir, e.Name()), info.ModTime()})
	}
	if len(candidates) == 0 {
		return "", "", errors.New("no backups found")
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].modTime.After(candidates[j].modTime)
	})

	for _, c := range candidates {
		if err := checkIntegrity(ctx, c.path); err != nil {
			slog.Debug("skipping damaged backup", "path", c.path, "error", err)
			continue
		}

		preserved := path + ".corrupted." + time.Now().UTC().Format("20060102-150405")
		if err := os.Rename(path, preserved); err != nil {
			slog.Warn("could not preserve damaged database", "path", path, "error", err)
			preserved = ""
		}
		os.Remove(path + "-wal")
		os.Remove(path + "-shm")

		if err := copyFile(c.path, path); err != nil {
			return "", "", fmt.Errorf("copying backup %s: %w", c.path, err)
		}
		return c.path, preserved, nil
	}
	return "", "", errors.New("no healthy backup found")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
