// Package annotate runs an interactive, line-oriented annotation session over
// a list of images.
package annotate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/starford/photoattr/internal/attrs"
	"github.com/starford/photoattr/internal/attrservice"
	"github.com/starford/photoattr/internal/session"
)

const help = `commands:
  show                 print the current image (also an empty line)
  set KEY=VALUE        edit an attribute (the "set" is optional)
  next | n             move to the next image
  prev | p             move to the previous image
  goto N               move to image N (1-based)
  save | w             write pending edits
  discard              drop pending edits
  reload               re-read the sidecar, keeping pending edits
  keys                 list attribute keys
  quit | q             leave (quit! drops pending edits)
`

// maxLine bounds one command line; long free-text comments must fit.
const maxLine = 4 << 20

// serviceSidecars routes session persistence through the attribute service
// so saves are validated and indexed.
type serviceSidecars struct {
	ctx context.Context
	svc *attrservice.Service
}

// ServiceSidecars adapts svc to the persistence a session needs.
func ServiceSidecars(ctx context.Context, svc *attrservice.Service) session.Sidecars {
	return serviceSidecars{ctx: ctx, svc: svc}
}

// Load creates a blank sidecar for an image seen for the first time, then
// reads it.
func (s serviceSidecars) Load(image string) attrs.Record {
	if _, err := s.svc.EnsureSidecar(s.ctx, image); err != nil {
		return attrs.Record{}
	}
	d, err := s.svc.GetAttributes(s.ctx, image)
	if err != nil {
		return attrs.Record{}
	}
	return d.Attributes
}

func (s serviceSidecars) Save(image string, update attrs.Record) (attrs.Record, error) {
	d, err := s.svc.UpdateAttributes(s.ctx, image, update, "")
	if err != nil {
		return nil, err
	}
	return d.Attributes, nil
}

// Run reads commands from in until quit, end of input, or ctx is done.
func Run(ctx context.Context, store session.Sidecars, images []string, autoSave bool, in io.Reader, out io.Writer) error {
	st, err := session.Open(store, images, autoSave)
	if err != nil {
		return err
	}

	render(out, st)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		next, quit, err := step(store, st, strings.TrimSpace(scanner.Text()), out)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		st = next
		if quit {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	return finish(store, st, out)
}

// step applies one command line and reports whether the session ended.
func step(store session.Sidecars, st session.State, line string, out io.Writer) (session.State, bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "", "show":
		render(out, st)
	case "help", "?":
		fmt.Fprint(out, help)
	case "keys":
		for _, k := range attrs.Keys[1:] {
			fmt.Fprintln(out, "  "+k)
		}
	case "next", "n":
		return move(out, st, func() (session.State, error) { return session.Next(store, st) })
	case "prev", "p":
		return move(out, st, func() (session.State, error) { return session.Prev(store, st) })
	case "goto":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return st, false, fmt.Errorf("goto: %q is not a number", arg)
		}
		return move(out, st, func() (session.State, error) { return session.Jump(store, st, n-1) })
	case "save", "w":
		saved, err := session.Save(store, st)
		if err != nil {
			return st, false, err
		}
		fmt.Fprintln(out, "saved")
		return saved, false, nil
	case "discard":
		st = session.Discard(st)
		render(out, st)
	case "reload":
		st = session.Reload(store, st)
		render(out, st)
	case "quit!", "q!":
		return st, true, nil
	case "quit", "q":
		if !st.Dirty() {
			return st, true, nil
		}
		if !st.AutoSave {
			return st, false, session.ErrUnsavedChanges
		}
		saved, err := session.Save(store, st)
		if err != nil {
			return st, false, err
		}
		return saved, true, nil
	default:
		assignment := line
		if cmd == "set" {
			assignment = arg
		} else if !strings.Contains(line, "=") {
			return st, false, fmt.Errorf("unknown command %q (try help)", cmd)
		}
		return edit(out, st, assignment)
	}
	return st, false, nil
}

func move(out io.Writer, st session.State, fn func() (session.State, error)) (session.State, bool, error) {
	next, err := fn()
	if err != nil {
		if errors.Is(err, session.ErrUnsavedChanges) {
			return st, false, fmt.Errorf("%w (save, discard, or enable auto-save)", err)
		}
		return st, false, err
	}
	render(out, next)
	return next, false, nil
}

func edit(out io.Writer, st session.State, assignment string) (session.State, bool, error) {
	rec, err := attrs.ParseAssignments([]string{assignment})
	if err != nil {
		return st, false, err
	}
	for k, v := range rec {
		if st, err = session.Edit(st, k, v); err != nil {
			return st, false, err
		}
		fmt.Fprintf(out, "  %s = %q\n", k, v)
	}
	return st, false, nil
}

// finish runs at end of input. Pending edits are saved only with auto-save.
func finish(store session.Sidecars, st session.State, out io.Writer) error {
	if !st.Dirty() {
		return nil
	}
	if !st.AutoSave {
		fmt.Fprintln(out, "unsaved changes discarded")
		return nil
	}
	_, err := session.Save(store, st)
	return err
}

func render(out io.Writer, st session.State) {
	image, rec := st.Current()
	pos, total := st.Position()
	marker := ""
	if st.Dirty() {
		marker = " *"
	}
	fmt.Fprintf(out, "[%d/%d] %s%s\n", pos, total, image, marker)
	for _, row := range rec.Rows() {
		fmt.Fprintf(out, "  %-24s %s\n", row.Key+":", row.Value)
	}
	if extras := rec.Extras(); len(extras) > 0 {
		fmt.Fprintf(out, "  (also stored: %s)\n", strings.Join(extras, ", "))
	}
}
