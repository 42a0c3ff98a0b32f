package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/melonattacker/buildtrace/internal/cliui"
	"github.com/melonattacker/buildtrace/internal/model"
	"github.com/melonattacker/buildtrace/internal/storage"
)

func SessionsCommand(args []string) error {
	return sessionsCommand(os.Stdout, args)
}

func sessionsCommand(out io.Writer, args []string) error {
	fs := newFlagSet("sessions", args, sessionsUsage)
	var indexPath string
	var q storage.QueryOptions
	var pid uint32
	var kind string
	fs.StringVar(&indexPath, "index", "", "SQLite index written by intercept --index")
	fs.StringVarP(&q.SessionID, "session", "s", "", "list the events of this session")
	fs.Uint32Var(&pid, "pid", 0, "only events of this process")
	fs.StringVar(&kind, "kind", "", "only events of this kind (started, exec, stopped, continued, signaled, terminated)")
	fs.StringVar(&q.Executable, "executable", "", "only events whose executable contains this text")
	fs.IntVar(&q.Limit, "limit", 200, "max events to list")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := noArgs(fs); err != nil {
		fs.Usage()
		return err
	}
	if indexPath == "" {
		fs.Usage()
		return errors.New("sessions requires --index")
	}
	if _, err := os.Stat(indexPath); err != nil {
		return err
	}
	q.PID = model.ProcessID(pid)
	q.Kind = model.Kind(kind)

	db, err := storage.OpenSQLite(indexPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if q.SessionID == "" {
		if q.PID != 0 || q.Kind != "" || q.Executable != "" {
			return errors.New("event filters require --session")
		}
		return listSessions(out, db)
	}
	return listEnvelopes(out, db, q)
}

func listSessions(w io.Writer, db *storage.SQLite) error {
	sessions, err := db.Sessions()
	if err != nil {
		return err
	}
	tbl := cliui.NewTable(
		cliui.Column{Name: "SESSION"},
		cliui.Column{Name: "STARTED"},
		cliui.Column{Name: "DURATION", AlignRight: true},
		cliui.Column{Name: "EXIT", AlignRight: true},
		cliui.Column{Name: "EVENTS", AlignRight: true},
		cliui.Column{Name: "COMMAND", MaxWidth: 60},
	)
	for _, s := range sessions {
		exit := strconv.Itoa(s.ExitCode)
		if s.EndTS == 0 {
			exit = "-"
		}
		tbl.Row(s.ID, cliui.Timestamp(s.StartTS), cliui.Duration(s.StartTS, s.EndTS), exit, strconv.Itoa(s.EnvelopeCount), s.Command)
	}
	return tbl.Render(w)
}

func listEnvelopes(w io.Writer, db *storage.SQLite, q storage.QueryOptions) error {
	var start time.Time
	sessions, err := db.Sessions()
	if err != nil {
		return err
	}
	found := false
	for _, s := range sessions {
		if s.ID == q.SessionID {
			start = time.Unix(0, s.StartTS)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("session %q not found in index", q.SessionID)
	}

	recs, err := db.QueryEnvelopes(q)
	if err != nil {
		return err
	}
	tbl := cliui.NewTable(
		cliui.Column{Name: "SEQ", AlignRight: true},
		cliui.Column{Name: "TIME", AlignRight: true},
		cliui.Column{Name: "PID", AlignRight: true},
		cliui.Column{Name: "KIND"},
		cliui.Column{Name: "DETAIL", MaxWidth: 80},
	)
	for _, r := range recs {
		env := r.Envelope
		tbl.Row(
			strconv.FormatInt(r.Seq, 10),
			cliui.Offset(env.Timestamp, start),
			strconv.FormatUint(uint64(env.PID), 10),
			string(env.Event.Kind()),
			eventDetail(env.Event),
		)
	}
	return tbl.Render(w)
}

func eventDetail(ev model.Event) string {
	switch e := ev.(type) {
	case model.Started:
		return fmt.Sprintf("ppid=%d %s", e.PPID, joinArgs(e.Executable, e.Arguments))
	case model.Exec:
		return joinArgs(e.Executable, e.Arguments)
	case model.Stopped:
		return e.Signal
	case model.Signaled:
		return e.Signal
	case model.Terminated:
		return "status=" + strconv.Itoa(e.Status)
	}
	return ""
}

func joinArgs(exe string, args []string) string {
	s := exe
	for i, a := range args {
		if i == 0 {
			continue
		}
		s += " " + strconv.Quote(a)
	}
	return s
}

func sessionsUsage(w io.Writer, fs *pflag.FlagSet) {
	prog := progName()
	fmt.Fprintf(w, "%s sessions: list intercepted builds stored in an index\n\n", prog)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %s sessions --index events.sqlite\n", prog)
	fmt.Fprintf(w, "  %s sessions --index events.sqlite --session <id> [filters]\n\n", prog)
	printFlags(w, fs)
}
