//go:build unix

package wrapper

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/melonattacker/buildtrace/internal/model"
)

var forwardedSignals = []os.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGHUP, unix.SIGQUIT}

// ExitEvent converts the final state of a child into the event to report
// and the status a shell would show for it.
func ExitEvent(state *os.ProcessState) (model.Event, int) {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return model.Terminated{Status: state.ExitCode()}, state.ExitCode()
	}
	status := unix.WaitStatus(ws)
	if status.Signaled() {
		sig := status.Signal()
		return model.Signaled{Signal: SignalName(sig)}, 128 + int(sig)
	}
	return model.Terminated{Status: status.ExitStatus()}, status.ExitStatus()
}

// SignalName returns the conventional name ("SIGKILL") of sig.
func SignalName(sig syscall.Signal) string {
	if name := unix.SignalName(sig); name != "" {
		return name
	}
	return sig.String()
}
