package pinbox

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	pid             int
	ignoreInterrupt bool
	journal         *journal

	once sync.Once
	done chan struct{}
	err  error
}

func (fp *fakeProcess) Pid() int {
	return fp.pid
}

func (fp *fakeProcess) exit(err error) {
	fp.once.Do(func() {
		fp.err = err
		close(fp.done)
	})
}

func (fp *fakeProcess) Interrupt() error {
	fp.journal.add(fmt.Sprintf("interrupt %d", fp.pid))
	if !fp.ignoreInterrupt {
		fp.exit(errors.New("signal: interrupt"))
	}
	return nil
}

func (fp *fakeProcess) Kill() error {
	fp.journal.add(fmt.Sprintf("kill %d", fp.pid))
	fp.exit(errors.New("signal: killed"))
	return nil
}

func (fp *fakeProcess) Done() <-chan struct{} {
	return fp.done
}

func (fp *fakeProcess) Err() error {
	select {
	case <-fp.done:
		return fp.err
	default:
		return nil
	}
}

type journal struct {
	lock    sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.lock.Lock()
	defer j.lock.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeLauncher struct {
	journal         *journal
	lastArgs        []string
	failWith        error
	ignoreInterrupt bool
	procs           []*fakeProcess
}

func (fl *fakeLauncher) start(name string, args []string, verbose bool) (process, error) {
	fl.lastArgs = append([]string{name}, args...)
	if fl.failWith != nil {
		return nil, fl.failWith
	}
	proc := &fakeProcess{
		pid:             100 + len(fl.procs),
		ignoreInterrupt: fl.ignoreInterrupt,
		journal:         fl.journal,
		done:            make(chan struct{}),
	}
	fl.procs = append(fl.procs, proc)
	fl.journal.add(fmt.Sprintf("start %d %s", proc.pid, args[len(args)-1]))
	return proc, nil
}

func newFakeSupervisor() (*VideoSupervisor, *fakeLauncher) {
	fl := &fakeLauncher{journal: &journal{}}
	vs := NewVideoSupervisor("", nil)
	vs.start = fl.start
	return vs, fl
}

func TestSwitchDefaults(t *testing.T) {
	vs, fl := newFakeSupervisor()

	require.NoError(t, vs.Switch("/home/pi/Videos/gates.mp4"))
	assert.Equal(t, []string{"cvlc", "--fullscreen", "file:///home/pi/Videos/gates.mp4"}, fl.lastArgs)

	status := vs.Status()
	assert.Equal(t, VideoStatus{File: "/home/pi/Videos/gates.mp4", Pid: 100, Running: true, Launches: 1}, status)
}

func TestSwitchSameFileLaunchesOnce(t *testing.T) {
	vs, fl := newFakeSupervisor()

	require.NoError(t, vs.Switch("gates.mp4"))
	require.NoError(t, vs.Switch("gates.mp4"))

	assert.Equal(t, []string{"start 100 file://gates.mp4"}, fl.journal.list())
	assert.Equal(t, 1, vs.Status().Launches)
}

func TestSwitchRestartOnPress(t *testing.T) {
	vs, fl := newFakeSupervisor()
	vs.RestartOnPress = true

	require.NoError(t, vs.Switch("gates.mp4"))
	require.NoError(t, vs.Switch("gates.mp4"))

	assert.Equal(t, []string{
		"start 100 file://gates.mp4",
		"interrupt 100",
		"start 101 file://gates.mp4",
	}, fl.journal.list())
}

func TestSwitchStopsPreviousFirst(t *testing.T) {
	vs, fl := newFakeSupervisor()

	require.NoError(t, vs.Switch("1-Gates-opening.mp4"))
	require.NoError(t, vs.Switch("2-Gates-closing.mp4"))

	assert.Equal(t, []string{
		"start 100 file://1-Gates-opening.mp4",
		"interrupt 100",
		"start 101 file://2-Gates-closing.mp4",
	}, fl.journal.list())
	assert.Equal(t, "2-Gates-closing.mp4", vs.Status().File)
}

func TestSwitchRelaunchesExitedPlayer(t *testing.T) {
	vs, fl := newFakeSupervisor()

	require.NoError(t, vs.Switch("gates.mp4"))
	fl.procs[0].exit(errors.New("exit status 1"))

	status := vs.Status()
	assert.False(t, status.Running)
	assert.Equal(t, "exit status 1", status.Exit)

	require.NoError(t, vs.Switch("gates.mp4"))
	assert.Equal(t, []string{
		"start 100 file://gates.mp4",
		"start 101 file://gates.mp4",
	}, fl.journal.list())
	assert.True(t, vs.Status().Running)
}

func TestSwitchKillsStubbornPlayer(t *testing.T) {
	vs, fl := newFakeSupervisor()
	vs.StopTimeout = 10 * time.Millisecond
	fl.ignoreInterrupt = true

	require.NoError(t, vs.Switch("a.mp4"))
	require.NoError(t, vs.Switch("b.mp4"))

	assert.Equal(t, []string{
		"start 100 file://a.mp4",
		"interrupt 100",
		"kill 100",
		"start 101 file://b.mp4",
	}, fl.journal.list())
}

func TestSwitchLaunchFailure(t *testing.T) {
	vs, fl := newFakeSupervisor()

	require.NoError(t, vs.Switch("a.mp4"))
	fl.failWith = errors.New("executable file not found")

	err := vs.Switch("b.mp4")
	assert.ErrorContains(t, err, "failed to start cvlc")

	status := vs.Status()
	assert.False(t, status.Running)
	assert.Empty(t, status.File)
	assert.Equal(t, 1, status.Launches)
	assert.Equal(t, []string{"start 100 file://a.mp4", "interrupt 100"}, fl.journal.list())
}

func TestStop(t *testing.T) {
	vs, fl := newFakeSupervisor()

	vs.Stop()
	require.NoError(t, vs.Switch("a.mp4"))
	vs.Stop()

	assert.Equal(t, []string{"start 100 file://a.mp4", "interrupt 100"}, fl.journal.list())
	assert.False(t, vs.Status().Running)
}
