package bish

import (
	"strconv"
	"strings"
)

// readBuiltin consumes one record from the command's stdin, splits it by
// IFS, and assigns the fields. Unread input stays available for the next
// read in the same redirection scope, which is what makes
// `while read line; do …; done < file` loops work.
func readBuiltin(in *Interp, args []string) (int, error) {
	raw := false
	prompt := ""
	delim := byte('\n')
	var vars []string

	i := 0
	for i < len(args) {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "--" {
			if arg == "--" {
				i++
			}
			vars = append(vars, args[i:]...)
			break
		}
		switch arg {
		case "-r":
			i++
		case "-p":
			i++
			if i >= len(args) {
				in.errf("bish: read: -p: option requires an argument\n")
				return 2, nil
			}
			prompt = args[i]
			i++
		case "-d":
			i++
			if i >= len(args) {
				in.errf("bish: read: -d: option requires an argument\n")
				return 2, nil
			}
			if args[i] == "" {
				delim = 0
			} else {
				delim = args[i][0]
			}
			i++
		case "-t":
			// Timeouts are a host concern; the value is validated and
			// otherwise ignored in the deterministic model.
			i++
			if i >= len(args) {
				in.errf("bish: read: -t: option requires an argument\n")
				return 2, nil
			}
			if _, err := strconv.ParseFloat(args[i], 64); err != nil {
				in.errf("bish: read: %s: invalid timeout specification\n", args[i])
				return 2, nil
			}
			i++
		default:
			in.errf("bish: read: %s: invalid option\n", arg)
			return 2, nil
		}
		if arg == "-r" {
			raw = true
		}
	}
	if len(vars) == 0 {
		vars = []string{"REPLY"}
	}
	for _, v := range vars {
		if !isValidName(v) {
			in.errf("bish: read: `%s': not a valid identifier\n", v)
			return 2, nil
		}
	}

	if prompt != "" {
		in.fdWriter(2).Write([]byte(prompt))
	}

	if in.stdin == "" {
		// EOF: variables are cleared and read reports failure.
		for _, v := range vars {
			_ = in.state.Set(v, "")
		}
		return 1, nil
	}

	// Consume up to the delimiter, honoring backslash-newline continuation
	// unless -r.
	var record strings.Builder
	data := in.stdin
	pos := 0
	for pos < len(data) {
		c := data[pos]
		if !raw && c == '\\' && pos+1 < len(data) {
			if data[pos+1] == '\n' {
				pos += 2
				continue
			}
			record.WriteByte(data[pos+1])
			pos += 2
			continue
		}
		if delim != 0 && c == delim {
			pos++
			break
		}
		if delim == 0 && c == 0 {
			pos++
			break
		}
		record.WriteByte(c)
		pos++
	}
	in.stdin = data[pos:]

	fields := splitReadFields(record.String(), in.state.IFS(), len(vars))
	for i, v := range vars {
		val := ""
		if i < len(fields) {
			val = fields[i]
		}
		if err := in.state.Set(v, val); err != nil {
			in.errf("%s\n", err.Error())
			return 1, nil
		}
	}
	return 0, nil
}

// splitReadFields splits a read record into at most max fields; the last
// field keeps the remaining text (with trailing IFS whitespace trimmed).
func splitReadFields(s, ifs string, max int) []string {
	if ifs == "" || max == 1 {
		return []string{strings.Trim(s, " \t")}
	}
	isIFS := func(c byte) bool { return strings.IndexByte(ifs, c) >= 0 }
	isWS := func(c byte) bool {
		return (c == ' ' || c == '\t' || c == '\n') && isIFS(c)
	}
	// Trim leading IFS whitespace.
	start := 0
	for start < len(s) && isWS(s[start]) {
		start++
	}
	s = s[start:]

	var fields []string
	cur := strings.Builder{}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if len(fields) == max-1 {
			// Last variable takes the rest, minus trailing IFS whitespace.
			rest := s[i:]
			fields = append(fields, cur.String()+strings.TrimRight(rest, ifsWhitespace(ifs)))
			cur.Reset()
			return fields
		}
		if isIFS(c) {
			fields = append(fields, cur.String())
			cur.Reset()
			// Collapse following IFS whitespace.
			for i+1 < len(s) && isWS(s[i+1]) {
				i++
			}
			continue
		}
		cur.WriteByte(c)
	}
	fields = append(fields, cur.String())
	return fields
}

func ifsWhitespace(ifs string) string {
	var sb strings.Builder
	for _, c := range []byte{' ', '\t', '\n'} {
		if strings.IndexByte(ifs, c) >= 0 {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
