package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/ppiankov/ancestra/internal/model"
)

// ErrLocked means another process or goroutine holds the stage lock.
var ErrLocked = errors.New("stage is locked by another attempt")

// StageLock is an exclusive lock on one stage of one run.
type StageLock struct {
	fl *flock.Flock
}

// LockStage takes the run+stage lock without waiting.
func (s *Store) LockStage(ref RunRef, stage model.Stage) (*StageLock, error) {
	dir := filepath.Join(s.stagesDir(ref), ".locks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	fl := flock.New(filepath.Join(dir, string(stage)+".lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire %s lock: %w", stage, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", ref, stage, ErrLocked)
	}
	return &StageLock{fl: fl}, nil
}

// Unlock releases the lock.
func (l *StageLock) Unlock() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
