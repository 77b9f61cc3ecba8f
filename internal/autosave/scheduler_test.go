package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/martinsuchenak/labconsole/internal/journal"
	"github.com/martinsuchenak/labconsole/internal/labclient"
	"github.com/martinsuchenak/labconsole/internal/labtest"
	"github.com/martinsuchenak/labconsole/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSource struct {
	device, text string
	ok           bool
}

func (f fixedSource) ActiveTranscript() (string, string, bool) { return f.device, f.text, f.ok }

type fakeSaver struct {
	mu     sync.Mutex
	calls  int
	config string
	status string
	err    error
}

func (f *fakeSaver) SaveProgress(_ context.Context, _, config, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.config, f.status = config, status
	return f.err
}

func (f *fakeSaver) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memRecorder struct {
	snaps []*journal.Snapshot
}

func (m *memRecorder) Record(_ context.Context, s *journal.Snapshot) error {
	m.snaps = append(m.snaps, s)
	return nil
}

func TestRunOnceSavesActiveTranscript(t *testing.T) {
	saver := &fakeSaver{}
	rec := &memRecorder{}
	m := metrics.New()
	s := New("1", fixedSource{"R1", "R1> show run", true}, saver, WithJournal(rec), WithMetrics(m))

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, "R1> show run", saver.config)
	assert.Equal(t, labclient.ProgressInProgress, saver.status)
	assert.Equal(t, StatusCompleted, s.State().Status)
	require.Len(t, rec.snaps, 1)
	assert.Equal(t, journal.KindAutosave, rec.snaps[0].Kind)
	assert.Equal(t, "R1", rec.snaps[0].Device)
	n, err := testutil.GatherAndCount(m.Registry(), "labconsole_autosave_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunOnceWithoutActiveTab(t *testing.T) {
	saver := &fakeSaver{}
	s := New("1", fixedSource{}, saver)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Zero(t, saver.Calls())
	assert.Equal(t, StatusSkipped, s.State().Status)
}

func TestRunOnceFailureIsRecorded(t *testing.T) {
	saver := &fakeSaver{err: errors.New("backend down")}
	rec := &memRecorder{}
	s := New("1", fixedSource{"R1", "x", true}, saver, WithJournal(rec))

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	st := s.State()
	assert.Equal(t, StatusFailed, st.Status)
	assert.Equal(t, err, st.LastErr)
	require.Len(t, rec.snaps, 1)
	assert.Equal(t, journal.StatusFailed, rec.snaps[0].Status)
	assert.Equal(t, "backend down", rec.snaps[0].Error)
}

func TestStartStop(t *testing.T) {
	saver := &fakeSaver{}
	s := New("1", fixedSource{"R1", "x", true}, saver, WithInterval(time.Second))
	assert.Equal(t, time.Second, s.Interval())

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.Running())

	require.Eventually(t, func() bool { return saver.Calls() > 0 }, 5*time.Second, 50*time.Millisecond)

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	calls := saver.Calls()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, calls, saver.Calls(), "no saves after Stop")
}

func TestDefaultInterval(t *testing.T) {
	s := New("1", fixedSource{}, &fakeSaver{}, WithInterval(0))
	assert.Equal(t, DefaultInterval, s.Interval())
}

func TestAutosaveAgainstMockBackend(t *testing.T) {
	srv, b := labtest.NewServer()
	defer srv.Close()
	client, err := labclient.New(labclient.Options{BaseURL: srv.URL})
	require.NoError(t, err)

	j, err := journal.Open(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	s := New("1", fixedSource{"R1", "R1> enable\nR1#", true}, client, WithJournal(j))
	require.NoError(t, s.RunOnce(context.Background()))

	lab, _ := b.Lab("1")
	p := lab.Progress()
	assert.Equal(t, "R1> enable\nR1#", p.Config)
	assert.Equal(t, "In Progress", p.Status)
	assert.Equal(t, 1, p.Saves)

	snaps, err := j.List(context.Background(), journal.Filter{LabID: "1"})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, journal.StatusOK, snaps[0].Status)
}
