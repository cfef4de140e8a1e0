// Package coreutils provides a small set of registered commands for the
// REPL and the test suite. Real utility breadth lives outside the
// interpreter; these exist to exercise the Command contract: byte stdin in,
// byte stdout/stderr out.
package coreutils

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"bish"
)

// All returns every bundled command.
func All() []bish.Command {
	return []bish.Command{
		bish.CommandFunc{CmdName: "echo", Fn: echoCmd},
		bish.CommandFunc{CmdName: "cat", Fn: catCmd},
		bish.CommandFunc{CmdName: "tr", Fn: trCmd},
		bish.CommandFunc{CmdName: "wc", Fn: wcCmd},
		bish.CommandFunc{CmdName: "head", Fn: headCmd},
		bish.CommandFunc{CmdName: "tail", Fn: tailCmd},
		bish.CommandFunc{CmdName: "sort", Fn: sortCmd},
		bish.CommandFunc{CmdName: "grep", Fn: grepCmd},
		bish.CommandFunc{CmdName: "env", Fn: envCmd},
		bish.CommandFunc{CmdName: "sleep", Fn: sleepCmd},
	}
}

// Register installs all bundled commands on a registry.
func Register(reg *bish.Registry) {
	for _, c := range All() {
		reg.Register(c)
	}
}

func echoCmd(argv []string, ctx *bish.CommandContext) bish.ExecResult {
	args := argv[1:]
	newline := true
	interpret := ctx.XpgEcho
	for len(args) > 0 {
		switch args[0] {
		case "-n":
			newline = false
		case "-e":
			interpret = true
		case "-E":
			interpret = false
		default:
			goto done
		}
		args = args[1:]
	}
done:
	out := strings.Join(args, " ")
	if interpret {
		out = echoUnescape(out)
	}
	if newline {
		out += "\n"
	}
	return bish.ExecResult{Stdout: out}
}

func echoUnescape(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			sb.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case 'v':
			sb.WriteByte('\v')
		case 'e':
			sb.WriteByte(0x1b)
		case '\\':
			sb.WriteByte('\\')
		case 'c':
			return sb.String()
		case '0':
			val := 0
			n := 0
			for i+1 < len(s) && n < 3 && s[i+1] >= '0' && s[i+1] <= '7' {
				i++
				n++
				val = val*8 + int(s[i]-'0')
			}
			sb.WriteByte(byte(val))
		case 'x':
			val := 0
			n := 0
			for i+1 < len(s) && n < 2 && isHex(s[i+1]) {
				i++
				n++
				val = val*16 + hexVal(s[i])
			}
			if n == 0 {
				sb.WriteString(`\x`)
			} else {
				sb.WriteByte(byte(val))
			}
		default:
			sb.WriteByte('\\')
			sb.WriteByte(s[i])
		}
	}
	return sb.String()
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}

// gatherInput reads the named files, or stdin when no files are given.
func gatherInput(args []string, ctx *bish.CommandContext) (string, string, int) {
	if len(args) == 0 {
		return ctx.Stdin, "", 0
	}
	var sb strings.Builder
	var errsb strings.Builder
	code := 0
	for _, name := range args {
		if name == "-" {
			sb.WriteString(ctx.Stdin)
			continue
		}
		data, err := ctx.FS.ReadFile(ctx.FS.ResolvePath(ctx.Cwd, name))
		if err != nil {
			fmt.Fprintf(&errsb, "%s: No such file or directory\n", name)
			code = 1
			continue
		}
		sb.WriteString(data)
	}
	return sb.String(), errsb.String(), code
}

func catCmd(argv []string, ctx *bish.CommandContext) bish.ExecResult {
	args := argv[1:]
	number := false
	if len(args) > 0 && args[0] == "-n" {
		number = true
		args = args[1:]
	}
	data, errOut, code := gatherInput(args, ctx)
	if number {
		var sb strings.Builder
		for i, line := range splitLines(data) {
			fmt.Fprintf(&sb, "%6d\t%s\n", i+1, line)
		}
		data = sb.String()
	}
	return bish.ExecResult{Stdout: data, Stderr: errOut, ExitCode: code}
}

// splitLines drops a single trailing newline before splitting.
func splitLines(s string) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// expandTrSet expands a-z style ranges and the common escapes.
func expandTrSet(s string) []byte {
	var out []byte
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '\\':
				out = append(out, '\\')
			default:
				out = append(out, s[i+1])
			}
			i += 2
			continue
		}
		if i+2 < len(s) && s[i+1] == '-' && s[i+2] >= c {
			for b := c; b <= s[i+2]; b++ {
				out = append(out, b)
			}
			i += 3
			continue
		}
		out = append(out, c)
		i++
	}
	return out
}

func trCmd(argv []string, ctx *bish.CommandContext) bish.ExecResult {
	args := argv[1:]
	del := false
	squeeze := false
	for len(args) > 0 && strings.HasPrefix(args[0], "-") && len(args[0]) > 1 {
		switch args[0] {
		case "-d":
			del = true
		case "-s":
			squeeze = true
		default:
			return bish.ExecResult{Stderr: "tr: invalid option " + args[0] + "\n", ExitCode: 1}
		}
		args = args[1:]
	}
	if len(args) == 0 || (!del && len(args) < 2) {
		return bish.ExecResult{Stderr: "tr: missing operand\n", ExitCode: 1}
	}
	set1 := expandTrSet(args[0])
	in := ctx.Stdin
	var sb strings.Builder
	if del {
		for i := 0; i < len(in); i++ {
			if indexByte(set1, in[i]) < 0 {
				sb.WriteByte(in[i])
			}
		}
		return bish.ExecResult{Stdout: sb.String()}
	}
	set2 := expandTrSet(args[1])
	var last byte
	haveLast := false
	for i := 0; i < len(in); i++ {
		c := in[i]
		if j := indexByte(set1, c); j >= 0 {
			if j >= len(set2) {
				c = set2[len(set2)-1]
			} else {
				c = set2[j]
			}
		}
		if squeeze && haveLast && c == last && indexByte(set2, c) >= 0 {
			continue
		}
		last, haveLast = c, true
		sb.WriteByte(c)
	}
	return bish.ExecResult{Stdout: sb.String()}
}

func indexByte(set []byte, c byte) int {
	for i, b := range set {
		if b == c {
			return i
		}
	}
	return -1
}

func wcCmd(argv []string, ctx *bish.CommandContext) bish.ExecResult {
	args := argv[1:]
	var countLines, countWords, countBytes bool
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "-l":
			countLines = true
		case "-w":
			countWords = true
		case "-c":
			countBytes = true
		default:
			return bish.ExecResult{Stderr: "wc: invalid option " + args[0] + "\n", ExitCode: 1}
		}
		args = args[1:]
	}
	data, errOut, code := gatherInput(args, ctx)
	lines := strings.Count(data, "\n")
	words := len(strings.Fields(data))
	bytes := len(data)
	var parts []string
	switch {
	case countLines && !countWords && !countBytes:
		parts = []string{strconv.Itoa(lines)}
	case countWords && !countLines && !countBytes:
		parts = []string{strconv.Itoa(words)}
	case countBytes && !countLines && !countWords:
		parts = []string{strconv.Itoa(bytes)}
	default:
		parts = []string{strconv.Itoa(lines), strconv.Itoa(words), strconv.Itoa(bytes)}
	}
	return bish.ExecResult{Stdout: strings.Join(parts, " ") + "\n", Stderr: errOut, ExitCode: code}
}

func parseCount(args []string) (int, []string, error) {
	n := 10
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		if args[0] == "-n" {
			if len(args) < 2 {
				return 0, nil, fmt.Errorf("option requires an argument -- n")
			}
			v, err := strconv.Atoi(args[1])
			if err != nil {
				return 0, nil, fmt.Errorf("invalid number %q", args[1])
			}
			n = v
			args = args[2:]
			continue
		}
		if v, err := strconv.Atoi(strings.TrimPrefix(args[0], "-")); err == nil {
			n = v
			args = args[1:]
			continue
		}
		return 0, nil, fmt.Errorf("invalid option %q", args[0])
	}
	return n, args, nil
}

func headCmd(argv []string, ctx *bish.CommandContext) bish.ExecResult {
	n, args, err := parseCount(argv[1:])
	if err != nil {
		return bish.ExecResult{Stderr: "head: " + err.Error() + "\n", ExitCode: 1}
	}
	data, errOut, code := gatherInput(args, ctx)
	lines := splitLines(data)
	if n < len(lines) {
		lines = lines[:n]
	}
	out := strings.Join(lines, "\n")
	if out != "" {
		out += "\n"
	}
	return bish.ExecResult{Stdout: out, Stderr: errOut, ExitCode: code}
}

func tailCmd(argv []string, ctx *bish.CommandContext) bish.ExecResult {
	n, args, err := parseCount(argv[1:])
	if err != nil {
		return bish.ExecResult{Stderr: "tail: " + err.Error() + "\n", ExitCode: 1}
	}
	data, errOut, code := gatherInput(args, ctx)
	lines := splitLines(data)
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	out := strings.Join(lines, "\n")
	if out != "" {
		out += "\n"
	}
	return bish.ExecResult{Stdout: out, Stderr: errOut, ExitCode: code}
}

func sortCmd(argv []string, ctx *bish.CommandContext) bish.ExecResult {
	args := argv[1:]
	reverse, numeric, unique := false, false, false
	for len(args) > 0 && strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "-r":
			reverse = true
		case "-n":
			numeric = true
		case "-u":
			unique = true
		default:
			return bish.ExecResult{Stderr: "sort: invalid option " + args[0] + "\n", ExitCode: 1}
		}
		args = args[1:]
	}
	data, errOut, code := gatherInput(args, ctx)
	lines := splitLines(data)
	if numeric {
		sort.SliceStable(lines, func(i, j int) bool {
			a, _ := strconv.ParseFloat(strings.TrimSpace(lines[i]), 64)
			b, _ := strconv.ParseFloat(strings.TrimSpace(lines[j]), 64)
			return a < b
		})
	} else {
		sort.Strings(lines)
	}
	if reverse {
		for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
			lines[i], lines[j] = lines[j], lines[i]
		}
	}
	if unique {
		var uniq []string
		for _, l := range lines {
			if len(uniq) == 0 || uniq[len(uniq)-1] != l {
				uniq = append(uniq, l)
			}
		}
		lines = uniq
	}
	out := strings.Join(lines, "\n")
	if out != "" {
		out += "\n"
	}
	return bish.ExecResult{Stdout: out, Stderr: errOut, ExitCode: code}
}

func grepCmd(argv []string, ctx *bish.CommandContext) bish.ExecResult {
	args := argv[1:]
	invert, ignoreCase, countOnly, quiet, fixed := false, false, false, false, false
	for len(args) > 0 && strings.HasPrefix(args[0], "-") && len(args[0]) > 1 {
		switch args[0] {
		case "-v":
			invert = true
		case "-i":
			ignoreCase = true
		case "-c":
			countOnly = true
		case "-q":
			quiet = true
		case "-F":
			fixed = true
		default:
			return bish.ExecResult{Stderr: "grep: invalid option " + args[0] + "\n", ExitCode: 2}
		}
		args = args[1:]
	}
	if len(args) == 0 {
		return bish.ExecResult{Stderr: "grep: missing pattern\n", ExitCode: 2}
	}
	pat := args[0]
	if fixed {
		pat = regexp.QuoteMeta(pat)
	}
	if ignoreCase {
		pat = "(?i)" + pat
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return bish.ExecResult{Stderr: "grep: invalid pattern: " + err.Error() + "\n", ExitCode: 2}
	}
	data, errOut, _ := gatherInput(args[1:], ctx)
	var matched []string
	for _, line := range splitLines(data) {
		m := re.MatchString(line)
		if m != invert {
			matched = append(matched, line)
		}
	}
	code := 0
	if len(matched) == 0 {
		code = 1
	}
	if quiet {
		return bish.ExecResult{ExitCode: code}
	}
	if countOnly {
		return bish.ExecResult{Stdout: strconv.Itoa(len(matched)) + "\n", Stderr: errOut, ExitCode: code}
	}
	out := strings.Join(matched, "\n")
	if out != "" {
		out += "\n"
	}
	return bish.ExecResult{Stdout: out, Stderr: errOut, ExitCode: code}
}

func envCmd(argv []string, ctx *bish.CommandContext) bish.ExecResult {
	args := argv[1:]
	if len(args) == 0 {
		names := ctx.Env.Names()
		sort.Strings(names)
		var sb strings.Builder
		for _, n := range names {
			fmt.Fprintf(&sb, "%s=%s\n", n, ctx.Env.Get(n))
		}
		return bish.ExecResult{Stdout: sb.String()}
	}
	// env NAME=VALUE cmd … re-enters the interpreter with the bindings
	// prefixed, exercising the Exec callback.
	if ctx.Exec == nil {
		return bish.ExecResult{Stderr: "env: exec unavailable\n", ExitCode: 1}
	}
	return ctx.Exec(strings.Join(args, " "))
}

// sleepCmd validates its argument and returns; wall-clock delay is the
// host's business, not the sandbox's.
func sleepCmd(argv []string, ctx *bish.CommandContext) bish.ExecResult {
	if len(argv) < 2 {
		return bish.ExecResult{Stderr: "sleep: missing operand\n", ExitCode: 1}
	}
	if _, err := strconv.ParseFloat(argv[1], 64); err != nil {
		return bish.ExecResult{Stderr: "sleep: invalid time interval '" + argv[1] + "'\n", ExitCode: 1}
	}
	return bish.ExecResult{}
}
