//go:build !unix

package wrapper

import (
	"os"

	"github.com/melonattacker/buildtrace/internal/model"
)

var forwardedSignals = []os.Signal{os.Interrupt}

func ExitEvent(state *os.ProcessState) (model.Event, int) {
	return model.Terminated{Status: state.ExitCode()}, state.ExitCode()
}
