package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stemsi/icas-portal/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls   []string
	steps   int
	forced  int
	err     error
	version uint
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.err
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	return f.err
}

func (f *fakeMigrator) Steps(n int) error {
	f.calls = append(f.calls, "steps")
	f.steps = n
	return f.err
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return f.version, false, f.err
}

func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.forced = v
	return f.err
}

func TestRunUpIgnoresNoChange(t *testing.T) {
	var buf bytes.Buffer
	m := &fakeMigrator{err: migrate.ErrNoChange}

	require.NoError(t, run(m, []string{"up"}, logger.New(&buf)))
	assert.Equal(t, []string{"up"}, m.calls)
	assert.Contains(t, buf.String(), "Archive schema migrated up")
}

func TestRunDownRollsBackOneStep(t *testing.T) {
	var buf bytes.Buffer
	m := &fakeMigrator{}

	require.NoError(t, run(m, []string{"down"}, logger.New(&buf)))
	assert.Equal(t, []string{"steps"}, m.calls)
	assert.Equal(t, -1, m.steps)
}

func TestRunForce(t *testing.T) {
	var buf bytes.Buffer
	m := &fakeMigrator{}

	require.NoError(t, run(m, []string{"force", "2"}, logger.New(&buf)))
	assert.Equal(t, 2, m.forced)

	assert.ErrorIs(t, run(m, []string{"force"}, logger.New(&buf)), errUsage)
	assert.Error(t, run(m, []string{"force", "two"}, logger.New(&buf)))
}

func TestRunVersion(t *testing.T) {
	var buf bytes.Buffer
	m := &fakeMigrator{version: 2}

	require.NoError(t, run(m, []string{"version"}, logger.New(&buf)))
	assert.Contains(t, buf.String(), `"version":2`)

	buf.Reset()
	m.err = migrate.ErrNilVersion
	require.NoError(t, run(m, []string{"version"}, logger.New(&buf)))
	assert.Contains(t, buf.String(), "no migrations applied")
}

func TestRunSurfacesFailures(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("dirty database")
	m := &fakeMigrator{err: boom}

	assert.ErrorIs(t, run(m, []string{"up"}, logger.New(&buf)), boom)
	assert.ErrorIs(t, run(m, []string{"reset"}, logger.New(&buf)), boom)
	assert.ErrorIs(t, run(m, []string{"sideways"}, logger.New(&buf)), errUsage)
}
