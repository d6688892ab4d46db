package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// SaveError reports a failed ledger write. Persistence is best-effort —
// losing one update beats crashing the host turn — but callers can tell a
// genuine write failure apart from nothing-to-report.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save ledger %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// load reads the ledger file. Missing or corrupt files yield empty state.
func load(path string, logger *zap.Logger) State {
	var st State
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("ledger unreadable, starting empty", zap.String("path", path), zap.Error(err))
		}
		return st
	}
	if err := json.Unmarshal(b, &st); err != nil {
		logger.Warn("ledger corrupt, starting empty", zap.String("path", path), zap.Error(err))
		return State{}
	}
	return st
}

// save writes the full state atomically (temp file then rename) so a crash
// mid-write never leaves a truncated document. Callers hold the mutex.
func (l *Ledger) save() error {
	b, err := json.MarshalIndent(l.st, "", "  ")
	if err != nil {
		return &SaveError{Path: l.path, Err: err}
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &SaveError{Path: l.path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return &SaveError{Path: l.path, Err: err}
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &SaveError{Path: l.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &SaveError{Path: l.path, Err: err}
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		os.Remove(tmp.Name())
		return &SaveError{Path: l.path, Err: err}
	}
	return nil
}
