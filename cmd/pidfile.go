package cmd

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/leeineian/jill/sys"
)

const (
	MsgBotKillingOld    = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated = "Old instance terminated."
)

// acquirePIDFile takes an exclusive lock on path, terminating whichever
// process holds it. The returned func unlocks and removes the file.
func acquirePIDFile(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open PID file: %w", err)
	}

	for {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if err != syscall.EWOULDBLOCK {
			_ = f.Close()
			return nil, fmt.Errorf("failed to lock PID file: %w", err)
		}

		var oldPid int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr != nil || oldPid == os.Getpid() {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		terminate(oldPid)
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d", os.Getpid())
	_ = f.Sync()

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		_ = os.Remove(path)
	}, nil
}

// terminate sends SIGTERM, waits up to five seconds, then SIGKILL.
func terminate(pid int) {
	process, err := os.FindProcess(pid)
	if err != nil {
		time.Sleep(100 * time.Millisecond)
		return
	}

	sys.LogInfo(MsgBotKillingOld, pid)
	_ = process.Signal(syscall.SIGTERM)

	for range 50 {
		if err := process.Signal(syscall.Signal(0)); err != nil {
			sys.LogInfo(MsgBotOldTerminated)
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	sys.LogWarn("Old process %d is stubborn. Sending SIGKILL...", pid)
	_ = process.Signal(syscall.SIGKILL)
	time.Sleep(200 * time.Millisecond)
}
