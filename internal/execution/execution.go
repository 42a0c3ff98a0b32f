// Package execution rebuilds the process tree of a traced build from the
// envelopes collected during the session.
//
// Envelopes arrive in no particular order and PIDs may be reused, so the
// builder sorts by timestamp and tracks, per PID, the execution that is
// currently running. An Exec event closes the running execution and opens a
// successor under the same PID; a Started event for a PID whose previous
// execution has ended opens a new, unrelated one.
package execution

import (
	"slices"
	"time"

	"github.com/melonattacker/buildtrace/internal/model"
)

// NoParent marks executions whose parent was not traced.
const NoParent = -1

type State int

const (
	Running State = iota
	Replaced
	Exited
	Killed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Replaced:
		return "replaced"
	case Exited:
		return "exited"
	case Killed:
		return "killed"
	}
	return "unknown"
}

// Execution is one program image run by one process.
type Execution struct {
	PID        model.ProcessID
	PPID       model.ProcessID
	Parent     int // index into the slice returned by Build, or NoParent
	Cwd        string
	Executable string
	Arguments  []string
	Start      time.Time
	End        time.Time // zero while running
	State      State
	Status     int    // exit status when State == Exited
	Signal     string // terminating signal when State == Killed
	Stops      int
	Continues  int
}

// kindOrder breaks timestamp ties so that a process is started before it
// is replaced, stopped or terminated.
func kindOrder(k model.Kind) int {
	switch k {
	case model.KindStarted:
		return 0
	case model.KindExec:
		return 1
	case model.KindStopped:
		return 2
	case model.KindContinued:
		return 3
	default:
		return 4
	}
}

func sortEnvelopes(envs []model.Envelope) []model.Envelope {
	out := slices.Clone(envs)
	slices.SortStableFunc(out, func(a, b model.Envelope) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if a.PID != b.PID {
			if a.PID < b.PID {
				return -1
			}
			return 1
		}
		return kindOrder(a.Event.Kind()) - kindOrder(b.Event.Kind())
	})
	return out
}

// Build returns the executions described by envs, ordered by start time.
// Events for a PID with no running execution (for example a Terminated
// whose Started record was lost) are ignored.
func Build(envs []model.Envelope) []Execution {
	var out []Execution
	// latest holds, per pid, the index of the most recent execution.
	latest := map[model.ProcessID]int{}

	open := func(env model.Envelope, ppid model.ProcessID, cwd, exe string, args []string) {
		parent := NoParent
		if idx, ok := latest[ppid]; ok && ppid != env.PID {
			parent = idx
		}
		out = append(out, Execution{
			PID:        env.PID,
			PPID:       ppid,
			Parent:     parent,
			Cwd:        cwd,
			Executable: exe,
			Arguments:  slices.Clone(args),
			Start:      env.Timestamp,
			State:      Running,
		})
		latest[env.PID] = len(out) - 1
	}

	running := func(pid model.ProcessID) (*Execution, bool) {
		idx, ok := latest[pid]
		if !ok || out[idx].State != Running {
			return nil, false
		}
		return &out[idx], true
	}

	for _, env := range sortEnvelopes(envs) {
		switch ev := env.Event.(type) {
		case model.Started:
			if cur, ok := running(env.PID); ok {
				// A second start without a termination in between means the
				// earlier record's end was lost.
				cur.State = Exited
				cur.End = env.Timestamp
			}
			open(env, ev.PPID, ev.Cwd, ev.Executable, ev.Arguments)
		case model.Exec:
			cur, ok := running(env.PID)
			if !ok {
				continue
			}
			cur.State = Replaced
			cur.End = env.Timestamp
			ppid, parent := cur.PPID, cur.Parent
			open(env, ppid, ev.Cwd, ev.Executable, ev.Arguments)
			out[len(out)-1].Parent = parent
		case model.Stopped:
			if cur, ok := running(env.PID); ok {
				cur.Stops++
			}
		case model.Continued:
			if cur, ok := running(env.PID); ok {
				cur.Continues++
			}
		case model.Terminated:
			if cur, ok := running(env.PID); ok {
				cur.State = Exited
				cur.Status = ev.Status
				cur.End = env.Timestamp
			}
		case model.Signaled:
			if cur, ok := running(env.PID); ok {
				cur.State = Killed
				cur.Signal = ev.Signal
				cur.End = env.Timestamp
			}
		}
	}
	return out
}

// Tree indexes executions by parent.
type Tree struct {
	Roots    []int
	Children map[int][]int
}

func NewTree(execs []Execution) Tree {
	t := Tree{Children: map[int][]int{}}
	for i, e := range execs {
		if e.Parent == NoParent {
			t.Roots = append(t.Roots, i)
			continue
		}
		t.Children[e.Parent] = append(t.Children[e.Parent], i)
	}
	return t
}

// Walk visits executions depth first, parents before children.
func (t Tree) Walk(fn func(idx, depth int) bool) {
	var visit func(idx, depth int) bool
	visit = func(idx, depth int) bool {
		if !fn(idx, depth) {
			return false
		}
		for _, c := range t.Children[idx] {
			if !visit(c, depth+1) {
				return false
			}
		}
		return true
	}
	for _, r := range t.Roots {
		if !visit(r, 0) {
			return
		}
	}
}
