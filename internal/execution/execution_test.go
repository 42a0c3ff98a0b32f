package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/melonattacker/buildtrace/internal/model"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func at(sec int, pid model.ProcessID, ev model.Event) model.Envelope {
	return model.CreateEnvelope(pid, t0.Add(time.Duration(sec)*time.Second), ev)
}

func started(ppid model.ProcessID, exe string, args ...string) model.Started {
	return model.Started{PPID: ppid, Cwd: "/repo", Executable: exe, Arguments: append([]string{exe}, args...)}
}

func TestBuildTree(t *testing.T) {
	// Shuffled on purpose: listing order carries no meaning.
	envs := []model.Envelope{
		at(5, 11, model.Terminated{Status: 0}),
		at(1, 10, started(1, "make")),
		at(9, 10, model.Terminated{Status: 2}),
		at(2, 11, started(10, "cc", "-c", "a.c")),
		at(3, 12, started(10, "cc", "-c", "b.c")),
		at(6, 12, model.Signaled{Signal: "SIGKILL"}),
	}

	execs := Build(envs)
	require.Len(t, execs, 3)

	makeExec := execs[0]
	require.Equal(t, "make", makeExec.Executable)
	require.Equal(t, NoParent, makeExec.Parent)
	require.Equal(t, Exited, makeExec.State)
	require.Equal(t, 2, makeExec.Status)
	require.Equal(t, t0.Add(9*time.Second), makeExec.End)

	require.Equal(t, 0, execs[1].Parent)
	require.Equal(t, Exited, execs[1].State)
	require.Equal(t, 0, execs[2].Parent)
	require.Equal(t, Killed, execs[2].State)
	require.Equal(t, "SIGKILL", execs[2].Signal)

	tree := NewTree(execs)
	require.Equal(t, []int{0}, tree.Roots)
	require.Equal(t, []int{1, 2}, tree.Children[0])

	var order []int
	var depths []int
	tree.Walk(func(idx, depth int) bool {
		order = append(order, idx)
		depths = append(depths, depth)
		return true
	})
	require.Equal(t, []int{0, 1, 2}, order)
	require.Equal(t, []int{0, 1, 1}, depths)
}

func TestBuildExecReplacesImage(t *testing.T) {
	envs := []model.Envelope{
		at(1, 20, started(1, "sh", "-c", "exec cc -c x.c")),
		at(2, 20, model.Exec{Cwd: "/repo/sub", Executable: "cc", Arguments: []string{"cc", "-c", "x.c"}}),
		at(3, 20, model.Terminated{Status: 0}),
	}
	execs := Build(envs)
	require.Len(t, execs, 2)
	require.Equal(t, Replaced, execs[0].State)
	require.Equal(t, t0.Add(2*time.Second), execs[0].End)
	require.Equal(t, "cc", execs[1].Executable)
	require.Equal(t, "/repo/sub", execs[1].Cwd)
	require.Equal(t, model.ProcessID(1), execs[1].PPID)
	require.Equal(t, Exited, execs[1].State)
}

func TestBuildPIDReuse(t *testing.T) {
	envs := []model.Envelope{
		at(1, 30, started(1, "cc", "a.c")),
		at(2, 30, model.Terminated{Status: 0}),
		at(3, 30, started(1, "ld", "a.o")),
		at(4, 31, started(30, "collect2")),
	}
	execs := Build(envs)
	require.Len(t, execs, 3)
	require.Equal(t, "cc", execs[0].Executable)
	require.Equal(t, Exited, execs[0].State)
	require.Equal(t, "ld", execs[1].Executable)
	require.Equal(t, Running, execs[1].State)
	// The child attaches to the execution running at the time, not the
	// earlier one that used the same pid.
	require.Equal(t, 1, execs[2].Parent)
}

func TestBuildStopContinueAndOrphans(t *testing.T) {
	envs := []model.Envelope{
		at(1, 40, model.Terminated{Status: 1}), // start was lost
		at(2, 41, started(999, "cc")),
		at(3, 41, model.Stopped{Signal: "SIGTSTP"}),
		at(4, 41, model.Continued{}),
		at(4, 41, model.Stopped{Signal: "SIGSTOP"}),
		at(5, 41, model.Exec{Executable: "cc1"}),
	}
	execs := Build(envs)
	require.Len(t, execs, 2)
	require.Equal(t, NoParent, execs[0].Parent)
	require.Equal(t, 2, execs[0].Stops)
	require.Equal(t, 1, execs[0].Continues)
	require.Equal(t, NoParent, execs[1].Parent)
	require.Equal(t, Running, execs[1].State)
	require.Equal(t, "running", execs[1].State.String())
}

func TestBuildEmpty(t *testing.T) {
	require.Empty(t, Build(nil))
	tree := NewTree(nil)
	require.Empty(t, tree.Roots)
}
