package bish

import (
	"bytes"
	"io"
	"strconv"

	"bish/parser"
)

// fsWriteTarget buffers writes destined for a file on the virtual
// filesystem; the bytes land on flush so a command's writes are atomic with
// respect to its own failure handling.
type fsWriteTarget struct {
	path   string
	append bool
	buf    bytes.Buffer
}

func (t *fsWriteTarget) Write(p []byte) (int, error) {
	return t.buf.Write(p)
}

// redirFrame remembers the fd map to restore, the stdin to restore when an
// input redirect replaced it, plus file targets to flush. Frames restore on
// every exit path, including unwind.
type redirFrame struct {
	savedFds   map[int]io.Writer
	savedStdin string
	stdinSet   bool
	targets    []*fsWriteTarget
}

// fdWriter resolves a write fd through the active redirection map.
func (in *Interp) fdWriter(fd int) io.Writer {
	if in.fds != nil {
		if w, ok := in.fds[fd]; ok {
			return w
		}
	}
	switch fd {
	case 1:
		return in.out
	case 2:
		return in.errOut
	}
	return io.Discard
}

// applyRedirects opens all redirect targets in order. On failure it returns
// a nonzero code and the diagnostic as an error for the caller to report;
// the caller must still close the returned frame.
func (in *Interp) applyRedirects(redirs []*parser.Redirect) (*redirFrame, int, error) {
	frame := &redirFrame{savedFds: in.fds, savedStdin: in.stdin}
	if len(redirs) == 0 {
		return frame, 0, nil
	}
	fds := map[int]io.Writer{}
	for k, v := range in.fds {
		fds[k] = v
	}
	in.fds = fds

	for _, r := range redirs {
		fd := r.Fd
		switch r.Op {
		case parser.RedirRead, parser.RedirHerestr, parser.RedirHeredoc, parser.RedirDupIn, parser.RedirReadWrite:
			frame.stdinSet = true
		}
		switch r.Op {
		case parser.RedirRead:
			if fd == -1 {
				fd = 0
			}
			path, err := in.expandWordNoSplit(r.Target)
			if err != nil {
				return frame, 1, err
			}
			data, rerr := in.fs.ReadFile(in.fs.ResolvePath(in.state.cwd, path))
			if rerr != nil {
				return frame, 1, &expandError{Msg: "bish: " + path + ": No such file or directory", Code: 1}
			}
			if fd == 0 {
				in.stdin = data
			}
		case parser.RedirHerestr:
			text, err := in.expandWordNoSplit(r.Target)
			if err != nil {
				return frame, 1, err
			}
			in.stdin = text + "\n"
		case parser.RedirHeredoc:
			body := ""
			if r.Body != nil {
				var err error
				body, err = in.expandWordNoSplit(r.Body)
				if err != nil {
					return frame, 1, err
				}
			}
			in.stdin = body
		case parser.RedirWrite, parser.RedirClobber, parser.RedirAppend:
			if fd == -1 {
				fd = 1
			}
			path, err := in.expandWordNoSplit(r.Target)
			if err != nil {
				return frame, 1, err
			}
			abs := in.fs.ResolvePath(in.state.cwd, path)
			if r.Op == parser.RedirWrite && in.state.flags.Noclobber && in.fs.Exists(abs) {
				if fi, serr := in.fs.Stat(abs); serr == nil && !fi.IsDir {
					return frame, 1, &expandError{Msg: "bish: " + path + ": cannot overwrite existing file", Code: 1}
				}
			}
			t := &fsWriteTarget{path: abs, append: r.Op == parser.RedirAppend}
			frame.targets = append(frame.targets, t)
			fds[fd] = t
		case parser.RedirDupOut:
			if fd == -1 {
				fd = 1
			}
			lit, err := in.expandWordNoSplit(r.Target)
			if err != nil {
				return frame, 1, err
			}
			if lit == "-" {
				fds[fd] = io.Discard
				break
			}
			if m, cerr := strconv.Atoi(lit); cerr == nil {
				fds[fd] = in.fdWriter(m)
				break
			}
			// >&file and &>file redirect both stdout and stderr.
			abs := in.fs.ResolvePath(in.state.cwd, lit)
			t := &fsWriteTarget{path: abs}
			frame.targets = append(frame.targets, t)
			fds[1] = t
			fds[2] = t
		case parser.RedirDupIn:
			if fd == -1 {
				fd = 0
			}
			lit, err := in.expandWordNoSplit(r.Target)
			if err != nil {
				return frame, 1, err
			}
			if lit == "-" && fd == 0 {
				in.stdin = ""
			}
			// Numeric input dups beyond fd 0 have no observable effect in
			// the byte-stream model.
		case parser.RedirReadWrite:
			if fd == -1 {
				fd = 0
			}
			path, err := in.expandWordNoSplit(r.Target)
			if err != nil {
				return frame, 1, err
			}
			abs := in.fs.ResolvePath(in.state.cwd, path)
			if data, rerr := in.fs.ReadFile(abs); rerr == nil {
				if fd == 0 {
					in.stdin = data
				}
			} else if werr := in.fs.WriteFile(abs, ""); werr != nil {
				return frame, 1, &expandError{Msg: "bish: " + path + ": " + werr.Error(), Code: 1}
			}
		}
	}
	return frame, 0, nil
}

// closeRedirects flushes file targets and restores the previous fd map and
// stdin.
func (in *Interp) closeRedirects(frame *redirFrame) error {
	in.fds = frame.savedFds
	if frame.stdinSet {
		in.stdin = frame.savedStdin
	}
	var firstErr error
	for _, t := range frame.targets {
		var err error
		if t.append {
			err = in.fs.AppendFile(t.path, t.buf.String())
		} else {
			err = in.fs.WriteFile(t.path, t.buf.String())
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		t.buf.Reset()
	}
	return firstErr
}
