package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matheus3301/frontdesk/internal/bus"
	"github.com/matheus3301/frontdesk/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()
	id, err := db.AddPatient(ctx, &store.Patient{Name: "Ana", Age: 30})
	require.NoError(t, err)
	_, err = db.AddPatient(ctx, &store.Patient{Name: "Bruno", Age: 41})
	require.NoError(t, err)
	_, err = db.AddAppointment(ctx, &store.Appointment{PatientID: id, Date: "2024-03-06", Time: "09:00"})
	require.NoError(t, err)
}

func clockAt(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[min(i, len(ts)-1)]
		i++
		return t
	}
}

func TestCreateAndList(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	b := bus.New()
	ch, unsub := b.Subscribe("backup.", 4)
	defer unsub()

	m := NewManager(filepath.Join(t.TempDir(), "backups"), db, b, nil, nil)
	m.Now = clockAt(
		time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC),
	)

	first, err := m.Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Patients)
	assert.Equal(t, 1, first.Appointments)

	st, err := os.Stat(first.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())

	second, err := m.Create(context.Background())
	require.NoError(t, err)

	all, err := m.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Equal(t, first.ID, all[1].ID)

	evt := <-ch
	assert.Equal(t, bus.BackupCreated, evt.Kind)
}

func TestListMissingDir(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nope"), nil, nil, nil, nil)
	all, err := m.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRestoreIntoFreshDB(t *testing.T) {
	src := testDB(t)
	seed(t, src)
	dir := t.TempDir()
	info, err := NewManager(dir, src, nil, nil, nil).Create(context.Background())
	require.NoError(t, err)

	dst := testDB(t)
	b := bus.New()
	ch, unsub := b.Subscribe("backup.", 4)
	defer unsub()
	m := NewManager(dir, dst, b, nil, nil)

	for _, ref := range []string{"", filepath.Base(info.Path), info.ID, info.Path} {
		got, err := m.Restore(context.Background(), ref)
		require.NoError(t, err, "ref %q", ref)
		assert.Equal(t, info.ID, got.ID)
	}

	patients, err := dst.AllPatients(context.Background())
	require.NoError(t, err)
	require.Len(t, patients, 2, "restores are idempotent upserts")
	assert.Equal(t, "Ana", patients[0].Name)

	appts, err := dst.Appointments(context.Background())
	require.NoError(t, err)
	require.Len(t, appts, 1)
	assert.Equal(t, patients[0].ID, appts[0].PatientID)

	assert.Equal(t, bus.BackupRestored, (<-ch).Kind)
}

func TestRestoreErrors(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, testDB(t), nil, nil, nil)

	_, err := m.Restore(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoBackups)

	_, err = m.Restore(context.Background(), "unknown-id")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	bad := filepath.Join(dir, "patients-bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = m.Restore(context.Background(), bad)
	assert.Error(t, err)
}

func TestPruneKeepsNewest(t *testing.T) {
	db := testDB(t)
	m := NewManager(t.TempDir(), db, nil, nil, nil)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m.Now = clockAt(base, base.Add(time.Hour), base.Add(2*time.Hour), base.Add(3*time.Hour))

	var infos []Info
	for i := 0; i < 4; i++ {
		info, err := m.Create(context.Background())
		require.NoError(t, err)
		infos = append(infos, info)
	}

	removed, err := m.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, err := m.List()
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, infos[3].ID, left[0].ID)
	assert.Equal(t, infos[2].ID, left[1].ID)

	removed, err = m.Prune(0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(NewManager(t.TempDir(), nil, nil, nil, nil), "every tuesday", 3, nil)
	assert.Error(t, err)
}

func TestSchedulerRunCreatesAndPrunes(t *testing.T) {
	db := testDB(t)
	m := NewManager(t.TempDir(), db, nil, nil, nil)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m.Now = clockAt(base, base.Add(time.Minute), base.Add(2*time.Minute))

	s, err := NewScheduler(m, "@every 1h", 2, nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop()

	for i := 0; i < 3; i++ {
		s.run()
	}
	left, err := m.List()
	require.NoError(t, err)
	assert.Len(t, left, 2)
}
