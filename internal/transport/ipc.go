package transport

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/kismetwireless/kismet-datasource-core/internal/kiserr"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
)

// pipePair adapts a read side and a write side into the rwc interface
// newByteStreamTransport expects.
type pipePair struct {
	r *os.File
	w *os.File
}

func (p pipePair) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipePair) Write(b []byte) (int, error) { return p.w.Write(b) }

// IPCOptions configures ConnectIPC.
type IPCOptions struct {
	MaxFrameBytes int
	QueueDepth    int

	// ShutdownGrace is how long Close waits for the child to exit after
	// SIGTERM before escalating to SIGKILL (spec §5: 2s ack wait is owned by
	// the protocol engine; this is the process-level grace period after the
	// transport itself is asked to tear down).
	ShutdownGrace time.Duration
}

// ipcTransport wraps a byteStreamTransport with ownership of the spawned
// child process, guaranteeing Close() also reaps it (spec §4.1).
type ipcTransport struct {
	*byteStreamTransport
	cmd *exec.Cmd
}

// ConnectIPC launches binary with args plus --in-fd/--out-fd flags
// referencing a pipe pair, and returns a Transport whose Close() also reaps
// the child. This is the local-helper analogue of the teacher's
// fork/exec/reap loop in cmd/supervisor.go, adapted from "one process
// supervising its own re-exec" into "a tracker supervising many short-lived
// named capture helpers".
func ConnectIPC(binary string, args []string, opts IPCOptions) (Transport, error) {
	// helper -> server
	helperOutR, helperOutW, err := os.Pipe()
	if err != nil {
		return nil, kiserr.Wrap(kiserr.KindTransport, err, "create helper stdout pipe")
	}
	// server -> helper
	helperInR, helperInW, err := os.Pipe()
	if err != nil {
		helperOutR.Close()
		helperOutW.Close()
		return nil, kiserr.Wrap(kiserr.KindTransport, err, "create helper stdin pipe")
	}

	// ExtraFiles[0] and [1] land on the child as fd 3 and fd 4.
	inFD := 3
	outFD := 4

	fullArgs := append([]string{}, args...)
	fullArgs = append(fullArgs, fmt.Sprintf("--in-fd=%d", inFD), fmt.Sprintf("--out-fd=%d", outFD))

	cmd := exec.Command(binary, fullArgs...)
	cmd.ExtraFiles = []*os.File{helperInR, helperOutW}
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		helperOutR.Close()
		helperOutW.Close()
		helperInR.Close()
		helperInW.Close()
		return nil, kiserr.Wrap(kiserr.KindTransport, err, "start capture helper")
	}

	// The server only needs its own ends; close the ends the child inherited.
	helperInR.Close()
	helperOutW.Close()

	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	t := &ipcTransport{cmd: cmd}
	t.byteStreamTransport = newByteStreamTransport(
		pipePair{r: helperOutR, w: helperInW},
		opts.MaxFrameBytes,
		opts.QueueDepth,
		func() error {
			helperOutR.Close()
			helperInW.Close()
			return reapChild(cmd, grace)
		},
	)
	return t, nil
}

// reapChild sends SIGTERM, waits up to grace, then escalates to SIGKILL
// (spec §5). ConnectIPC passes IPCOptions.ShutdownGrace, or 5s when that is
// not set, so an unresponsive child is killed 5s after the SIGTERM.
func reapChild(cmd *exec.Cmd, grace time.Duration) error {
	if cmd.Process == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		printer.Warningf("capture helper pid %d did not exit after SIGTERM, sending SIGKILL\n", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		return <-done
	}
}
