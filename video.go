package pinbox

import (
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

const defaultVideoPlayer = "cvlc"
const defaultVideoStopTimeout = 2 * time.Second

var defaultVideoArgs = []string{"--fullscreen"}

// process is a running player and its process group.
type process interface {
	Pid() int
	Interrupt() error
	Kill() error
	Done() <-chan struct{}
	Err() error
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (ep *execProcess) Pid() int {
	return ep.cmd.Process.Pid
}

func (ep *execProcess) Done() <-chan struct{} {
	return ep.done
}

// Err is the exit error, valid once Done is closed.
func (ep *execProcess) Err() error {
	select {
	case <-ep.done:
		return ep.err
	default:
		return nil
	}
}

func startProcess(name string, args []string, verbose bool) (process, error) {
	cmd := exec.Command(name, args...)
	if verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	setProcessGroup(cmd)

	err := cmd.Start()
	if err != nil {
		return nil, err
	}

	ep := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		ep.err = cmd.Wait()
		close(ep.done)
	}()
	return ep, nil
}

type videoSession struct {
	file string
	proc process
}

func (vs *videoSession) running() bool {
	select {
	case <-vs.proc.Done():
		return false
	default:
		return true
	}
}

type VideoStatus struct {
	File     string `json:"file,omitempty"`
	Pid      int    `json:"pid,omitempty"`
	Running  bool   `json:"running"`
	Exit     string `json:"exit,omitempty"`
	Launches int    `json:"launches"`
}

// VideoSupervisor keeps at most one player running. The player forks its
// own children, so it is started in a new process group and stopped by
// signalling the whole group.
type VideoSupervisor struct {
	Player         string
	Args           []string
	RestartOnPress bool
	StopTimeout    time.Duration
	Verbose        bool

	lock     sync.Mutex
	active   *videoSession
	launches int
	start    func(name string, args []string, verbose bool) (process, error)
	logger   *log.Logger
}

func NewVideoSupervisor(player string, args []string) *VideoSupervisor {
	if len(player) == 0 {
		player = defaultVideoPlayer
	}
	if args == nil {
		args = defaultVideoArgs
	}
	return &VideoSupervisor{
		Player:      player,
		Args:        args,
		StopTimeout: defaultVideoStopTimeout,
		start:       startProcess,
		logger:      log.WithPrefix("video"),
	}
}

// Switch plays file. It is a no-op when file is already playing, unless
// RestartOnPress is set. A player that has exited is never treated as
// playing.
func (vs *VideoSupervisor) Switch(file string) error {
	vs.lock.Lock()
	defer vs.lock.Unlock()

	if vs.active != nil && vs.active.file == file && vs.active.running() && !vs.RestartOnPress {
		vs.logger.Debug("already playing", "file", file)
		return nil
	}

	vs.stopActive()

	args := append(append([]string{}, vs.Args...), "file://"+file)
	proc, err := vs.start(vs.Player, args, vs.Verbose)
	if err != nil {
		return errors.Wrapf(err, "failed to start %s", vs.Player)
	}

	session := &videoSession{file: file, proc: proc}
	vs.active = session
	vs.launches++
	vs.logger.Info("playing", "file", file, "pid", proc.Pid())

	go vs.watch(session)
	return nil
}

func (vs *VideoSupervisor) watch(session *videoSession) {
	<-session.proc.Done()
	if err := session.proc.Err(); err != nil {
		vs.logger.Warn("player exited", "file", session.file, "pid", session.proc.Pid(), "err", err)
		return
	}
	vs.logger.Info("player exited", "file", session.file, "pid", session.proc.Pid())
}

// stopActive interrupts the active group and waits for it to exit, killing
// it after StopTimeout. Caller holds vs.lock.
func (vs *VideoSupervisor) stopActive() {
	session := vs.active
	vs.active = nil
	if session == nil {
		vs.logger.Debug("no video running")
		return
	}
	if !session.running() {
		return
	}

	vs.logger.Info("killing process", "pid", session.proc.Pid(), "file", session.file)
	err := session.proc.Interrupt()
	if err != nil {
		vs.logger.Warn("failed to interrupt player", "pid", session.proc.Pid(), "err", err)
	}

	select {
	case <-session.proc.Done():
	case <-time.After(vs.StopTimeout):
		vs.logger.Warn("player ignored interrupt, killing", "pid", session.proc.Pid())
		if err := session.proc.Kill(); err != nil {
			vs.logger.Error("failed to kill player", "pid", session.proc.Pid(), "err", err)
			return
		}
		<-session.proc.Done()
	}
}

func (vs *VideoSupervisor) Stop() {
	vs.lock.Lock()
	defer vs.lock.Unlock()
	vs.stopActive()
}

func (vs *VideoSupervisor) Status() VideoStatus {
	vs.lock.Lock()
	defer vs.lock.Unlock()

	status := VideoStatus{Launches: vs.launches}
	if vs.active == nil {
		return status
	}
	status.File = vs.active.file
	status.Pid = vs.active.proc.Pid()
	status.Running = vs.active.running()
	if err := vs.active.proc.Err(); err != nil {
		status.Exit = err.Error()
	}
	return status
}
