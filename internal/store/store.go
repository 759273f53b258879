package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/wildernesslabs/meadowd/internal/logging"
	"github.com/wildernesslabs/meadowd/internal/types"
)

const (
	infoFileName   = "info.json"
	mpakFileName   = "update.mpak"
	scratchDirName = "tmp"
)

// Store is the update store's CRUD surface. Each mpak_id has its own
// directory under root. Add serializes on the mpak_id's PerUpdateLock;
// other callers take that lock themselves when they need it.
type Store struct {
	root string

	mu      sync.RWMutex
	locks   map[string]*sync.Mutex
	records map[string]*types.StoreRecord
}

// Open loads every existing record under root into memory, creating root
// if it doesn't yet exist.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, types.NewError(types.ErrorKindIOFailure, fmt.Errorf("create store root: %w", err))
	}

	s := &Store{
		root:    root,
		locks:   make(map[string]*sync.Mutex),
		records: make(map[string]*types.StoreRecord),
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, types.NewError(types.ErrorKindIOFailure, fmt.Errorf("read store root: %w", err))
	}

	logger := logging.WithComponent("store")
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		record, err := readInfo(filepath.Join(root, e.Name(), infoFileName))
		if err != nil {
			logger.Warn().Str("mpak_id", e.Name()).Err(err).Msg("skipping unreadable update directory")
			continue
		}
		s.records[e.Name()] = record
	}

	return s, nil
}

// Dir returns the on-disk directory for mpakID, creating it if absent.
func (s *Store) Dir(mpakID string) (string, error) {
	dir := filepath.Join(s.root, mpakID)
	if err := os.MkdirAll(filepath.Join(dir, scratchDirName), 0755); err != nil {
		return "", types.NewError(types.ErrorKindIOFailure, fmt.Errorf("create update directory: %w", err))
	}
	return dir, nil
}

// MpakPath returns the path update.mpak is (or will be) stored at.
func (s *Store) MpakPath(mpakID string) string {
	return filepath.Join(s.root, mpakID, mpakFileName)
}

// ScratchDir returns a fresh, uniquely named scratch directory under
// mpakID's tmp/, for extraction or in-progress downloads.
func (s *Store) ScratchDir(mpakID string) (string, error) {
	dir, err := s.Dir(mpakID)
	if err != nil {
		return "", err
	}
	scratch := filepath.Join(dir, scratchDirName, uuid.NewString())
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return "", types.NewError(types.ErrorKindIOFailure, fmt.Errorf("create scratch directory: %w", err))
	}
	return scratch, nil
}

// PerUpdateLock returns the mutex serializing access to one mpak_id's
// record, creating it on first use.
func (s *Store) PerUpdateLock(mpakID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[mpakID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[mpakID] = l
	}
	return l
}

// Add inserts a new descriptor as a pending record. It is a no-op (not an
// error) if mpakID is already known, matching the monotonic-retrieved/
// applied semantics: an update that's already been announced doesn't reset
// its progress because it was announced again.
func (s *Store) Add(descriptor types.UpdateDescriptor) (*types.StoreRecord, error) {
	lock := s.PerUpdateLock(descriptor.MpakID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	existing, ok := s.records[descriptor.MpakID]
	s.mu.RUnlock()
	if ok {
		return existing, nil
	}

	record := &types.StoreRecord{
		Descriptor: descriptor,
		ApplyState: types.ApplyStatePending,
	}
	if err := s.persist(record); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.records[descriptor.MpakID] = record
	s.mu.Unlock()

	return record, nil
}

// Get returns the record for mpakID, or (nil, false) if unknown.
func (s *Store) Get(mpakID string) (*types.StoreRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[mpakID]
	return record, ok
}

// List returns every known record, in no particular order.
func (s *Store) List() []*types.StoreRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.StoreRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out
}

// CountsByApplyState summarizes the store for internal/telemetry.
func (s *Store) CountsByApplyState() map[types.ApplyState]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[types.ApplyState]int)
	for _, r := range s.records {
		counts[r.ApplyState]++
	}
	return counts
}

// Update mutates the record for mpakID via fn and persists the result.
// Callers must hold the mpak_id's PerUpdateLock across read-modify-write
// sequences that span more than this call.
func (s *Store) Update(mpakID string, fn func(*types.StoreRecord)) (*types.StoreRecord, error) {
	s.mu.Lock()
	record, ok := s.records[mpakID]
	if !ok {
		s.mu.Unlock()
		return nil, types.NewError(types.ErrorKindNotKnown, fmt.Errorf("update %s is not in the store", mpakID))
	}
	fn(record)
	s.mu.Unlock()

	if err := s.persist(record); err != nil {
		return nil, err
	}
	return record, nil
}

// Remove deletes mpakID's record and its on-disk directory entirely.
func (s *Store) Remove(mpakID string) error {
	s.mu.Lock()
	delete(s.records, mpakID)
	delete(s.locks, mpakID)
	s.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(s.root, mpakID)); err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("remove update directory: %w", err))
	}
	return nil
}

// persist writes record's info.json via write-temp-then-rename so a crash
// mid-write never leaves a torn file.
func (s *Store) persist(record *types.StoreRecord) error {
	dir, err := s.Dir(record.Descriptor.MpakID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("marshal record: %w", err))
	}

	final := filepath.Join(dir, infoFileName)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("write info.json: %w", err))
	}
	if err := os.Rename(tmp, final); err != nil {
		return types.NewError(types.ErrorKindIOFailure, fmt.Errorf("rename info.json into place: %w", err))
	}
	return nil
}

func readInfo(path string) (*types.StoreRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var record types.StoreRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &record, nil
}
