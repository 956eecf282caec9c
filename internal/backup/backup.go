// Package backup writes and restores JSON snapshots of the patient records.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/frontdesk/internal/bus"
	"github.com/matheus3301/frontdesk/internal/metrics"
	"github.com/matheus3301/frontdesk/internal/store"
)

// ErrNoBackups is returned when a restore needs the latest backup and there is none.
var ErrNoBackups = errors.New("no backups found")

const (
	filePrefix = "patients-"
	fileExt    = ".json"
	nameLayout = "20060102-150405"
)

// Records is the store surface a backup reads from and restores into.
type Records interface {
	AllPatients(ctx context.Context) ([]store.Patient, error)
	Appointments(ctx context.Context) ([]store.Appointment, error)
	ImportRecords(ctx context.Context, patients []store.Patient, appointments []store.Appointment) error
}

// File is the on-disk backup document.
type File struct {
	ID           string              `json:"id"`
	CreatedAt    time.Time           `json:"createdAt"`
	Patients     []store.Patient     `json:"patients"`
	Appointments []store.Appointment `json:"appointments"`
}

// Info describes a backup file.
type Info struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	CreatedAt    time.Time `json:"createdAt"`
	Size         int64     `json:"size"`
	Patients     int       `json:"patients"`
	Appointments int       `json:"appointments"`
}

// Manager creates and restores backups in one directory.
type Manager struct {
	dir     string
	db      Records
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger

	Now func() time.Time
}

// NewManager creates a backup manager writing to dir.
func NewManager(dir string, db Records, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{dir: dir, db: db, bus: b, metrics: m, logger: logger, Now: time.Now}
}

// Dir returns the backup directory.
func (m *Manager) Dir() string { return m.dir }

// Create snapshots every patient and appointment into a new file.
func (m *Manager) Create(ctx context.Context) (Info, error) {
	patients, err := m.db.AllPatients(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("read patients: %w", err)
	}
	appts, err := m.db.Appointments(ctx)
	if err != nil {
		return Info{}, fmt.Errorf("read appointments: %w", err)
	}

	now := m.Now()
	f := File{
		ID:           uuid.NewString(),
		CreatedAt:    now.UTC(),
		Patients:     nonNil(patients),
		Appointments: nonNil(appts),
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return Info{}, fmt.Errorf("marshal backup: %w", err)
	}

	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return Info{}, fmt.Errorf("create backup dir: %w", err)
	}
	name := filePrefix + now.Format(nameLayout) + "-" + f.ID[:8] + fileExt
	path := filepath.Join(m.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return Info{}, fmt.Errorf("write backup: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Info{}, fmt.Errorf("finalize backup: %w", err)
	}

	info := Info{
		ID:           f.ID,
		Path:         path,
		CreatedAt:    f.CreatedAt,
		Size:         int64(len(data)),
		Patients:     len(f.Patients),
		Appointments: len(f.Appointments),
	}
	m.metrics.BackupCreated()
	m.bus.Emit(bus.BackupCreated, info)
	m.logger.Info("backup created", zap.String("path", path), zap.Int("patients", info.Patients))
	return info, nil
}

// List returns the backups in the directory, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
			continue
		}
		path := filepath.Join(m.dir, name)
		f, size, err := readFile(path)
		if err != nil {
			m.logger.Warn("skipping unreadable backup", zap.String("path", path), zap.Error(err))
			continue
		}
		out = append(out, Info{
			ID:           f.ID,
			Path:         path,
			CreatedAt:    f.CreatedAt,
			Size:         size,
			Patients:     len(f.Patients),
			Appointments: len(f.Appointments),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Path > out[j].Path
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Restore upserts every record of a backup. An empty ref restores the latest
// backup; otherwise ref is a path, a file name in the directory, or a backup ID.
func (m *Manager) Restore(ctx context.Context, ref string) (Info, error) {
	path, err := m.resolve(ref)
	if err != nil {
		return Info{}, err
	}
	f, size, err := readFile(path)
	if err != nil {
		return Info{}, err
	}
	if err := m.db.ImportRecords(ctx, f.Patients, f.Appointments); err != nil {
		return Info{}, fmt.Errorf("restore %s: %w", filepath.Base(path), err)
	}

	info := Info{
		ID:           f.ID,
		Path:         path,
		CreatedAt:    f.CreatedAt,
		Size:         size,
		Patients:     len(f.Patients),
		Appointments: len(f.Appointments),
	}
	m.bus.Emit(bus.BackupRestored, info)
	m.logger.Info("backup restored", zap.String("path", path), zap.Int("patients", info.Patients))
	return info, nil
}

// Prune deletes all but the newest keep backups and returns how many were removed.
func (m *Manager) Prune(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	all, err := m.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, info := range all[min(keep, len(all)):] {
		if err := os.Remove(info.Path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", filepath.Base(info.Path), err)
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("old backups pruned", zap.Int("removed", removed))
	}
	return removed, nil
}

func (m *Manager) resolve(ref string) (string, error) {
	if ref == "" {
		all, err := m.List()
		if err != nil {
			return "", err
		}
		if len(all) == 0 {
			return "", ErrNoBackups
		}
		return all[0].Path, nil
	}
	if filepath.IsAbs(ref) {
		return ref, nil
	}
	if path := filepath.Join(m.dir, ref); fileExists(path) {
		return path, nil
	}
	all, err := m.List()
	if err != nil {
		return "", err
	}
	for _, info := range all {
		if info.ID == ref {
			return info.Path, nil
		}
	}
	return "", fmt.Errorf("backup %q: %w", ref, os.ErrNotExist)
}

func readFile(path string) (*File, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read backup: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, 0, fmt.Errorf("parse backup %s: %w", filepath.Base(path), err)
	}
	return &f, int64(len(data)), nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
