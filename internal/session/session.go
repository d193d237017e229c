// Package session persists the process's trading session state to a single
// ".session_state" file (§6), so a restarted process can detect whether it
// is resuming a crashed run or starting clean.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/riverline-quant/predictor-core/pkg/types"
)

const stateFileName = ".session_state"

// Store loads and persists the singleton Session to a JSON file on disk.
type Store struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// NewStore builds a Store backed by "<dir>/.session_state".
func NewStore(dir string, log *zap.Logger) *Store {
	return &Store{path: filepath.Join(dir, stateFileName), log: log}
}

// Load reads the persisted session, if any. A missing file is not an
// error: it means this is the first run in dir.
func (s *Store) Load() (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session state: %w", err)
	}

	var sess types.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parse session state: %w", err)
	}
	return &sess, nil
}

// Save persists sess, replacing the previous file atomically via a
// write-then-rename so a crash mid-write never leaves a truncated file.
func (s *Store) Save(sess types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write session state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace session state: %w", err)
	}
	return nil
}

// Heartbeat updates sess.LastHeartbeat to now and persists it. Called
// periodically so a watchdog can detect a wedged process from outside.
func (s *Store) Heartbeat(sess *types.Session, now time.Time) error {
	sess.LastHeartbeat = now
	if err := s.Save(*sess); err != nil {
		if s.log != nil {
			s.log.Warn("failed to persist heartbeat", zap.Error(err))
		}
		return err
	}
	return nil
}

// IsCrashRecovery reports whether prior, loaded from disk, describes a
// session that ended without a clean STOPPED transition — i.e. the process
// was killed mid-run and this is a recovery start.
func IsCrashRecovery(prior *types.Session) bool {
	return prior != nil && prior.Status == types.SessionRunning
}
