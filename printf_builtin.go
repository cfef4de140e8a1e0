package bish

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"bish/arith"
)

// printfBuiltin implements the printf builtin: C-style format specifiers,
// backslash escapes, format reuse for extra arguments, and %q shell
// quoting.
func printfBuiltin(in *Interp, args []string) (int, error) {
	if len(args) == 0 {
		in.errf("bish: printf: usage: printf format [arguments]\n")
		return 2, nil
	}
	format := args[0]
	values := args[1:]
	out := in.fdWriter(1)

	specs := findFormatSpecifiers(format)
	if len(specs) == 0 {
		fmt.Fprint(out, processEscapeSequences(format))
		return 0, nil
	}

	valueIndex := 0
	for {
		var sb strings.Builder
		pos := 0
		startIndex := valueIndex
		for _, spec := range specs {
			idx := strings.Index(format[pos:], spec.full)
			if idx < 0 {
				continue
			}
			sb.WriteString(processEscapeSequences(format[pos : pos+idx]))
			pos += idx + len(spec.full)
			var value string
			if spec.specifier != "%" && valueIndex < len(values) {
				value = values[valueIndex]
				valueIndex++
			} else if spec.specifier != "%" {
				value = getDefaultValue(spec.specifier)
			}
			formatted, err := formatValue(value, spec)
			if err != nil {
				in.errf("bish: printf: %s\n", err.Error())
				return 1, nil
			}
			sb.WriteString(formatted)
		}
		sb.WriteString(processEscapeSequences(format[pos:]))
		fmt.Fprint(out, sb.String())
		if valueIndex >= len(values) || valueIndex == startIndex {
			break
		}
	}
	return 0, nil
}

// formatSpec is one parsed %-specifier.
type formatSpec struct {
	full         string
	flags        string
	width        int
	precision    int
	hasPrecision bool
	specifier    string
}

var formatSpecRe = regexp.MustCompile(`%([#0 +-]*)(\d*)(?:\.(\d+))?([sdifxXocbq%])`)

func findFormatSpecifiers(format string) []formatSpec {
	matches := formatSpecRe.FindAllStringSubmatch(format, -1)
	specs := make([]formatSpec, 0, len(matches))
	for _, match := range matches {
		spec := formatSpec{
			full:      match[0],
			flags:     match[1],
			specifier: match[4],
		}
		if match[2] != "" {
			spec.width, _ = strconv.Atoi(match[2])
		}
		if match[3] != "" {
			spec.precision, _ = strconv.Atoi(match[3])
			spec.hasPrecision = true
		}
		specs = append(specs, spec)
	}
	return specs
}

// parsePrintfInt accepts the numeric forms the shell does, including 'c for
// a character code.
func parsePrintfInt(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if value[0] == '\'' || value[0] == '"' {
		if len(value) > 1 {
			return int64(value[1])
		}
		return 0
	}
	if n, err := arith.ParseNumber(value); err == nil {
		return n
	}
	return 0
}

func formatValue(value string, spec formatSpec) (string, error) {
	switch spec.specifier {
	case "%":
		return "%", nil
	case "s":
		result := value
		if spec.hasPrecision && spec.precision < len(value) {
			result = value[:spec.precision]
		}
		if spec.width > 0 {
			if strings.Contains(spec.flags, "-") {
				result = fmt.Sprintf("%-*s", spec.width, result)
			} else {
				result = fmt.Sprintf("%*s", spec.width, result)
			}
		}
		return result, nil
	case "q":
		return shellQuote(value), nil
	case "d", "i":
		return fmt.Sprintf(buildNumericFormat(spec, 'd'), parsePrintfInt(value)), nil
	case "x":
		return fmt.Sprintf(buildNumericFormat(spec, 'x'), parsePrintfInt(value)), nil
	case "X":
		return fmt.Sprintf(buildNumericFormat(spec, 'X'), parsePrintfInt(value)), nil
	case "o":
		return fmt.Sprintf(buildNumericFormat(spec, 'o'), parsePrintfInt(value)), nil
	case "b":
		// %b expands escapes in the argument, like echo -e.
		return processEscapeSequences(value), nil
	case "f":
		num, err := strconv.ParseFloat(value, 64)
		if err != nil {
			num = 0.0
		}
		return fmt.Sprintf(buildNumericFormat(spec, 'f'), num), nil
	case "c":
		if len(value) == 0 {
			return "", nil
		}
		return string(value[0]), nil
	}
	return value, nil
}

func buildNumericFormat(spec formatSpec, base byte) string {
	var format strings.Builder
	format.WriteByte('%')
	format.WriteString(spec.flags)
	if spec.width > 0 {
		format.WriteString(strconv.Itoa(spec.width))
	}
	if spec.hasPrecision {
		format.WriteByte('.')
		format.WriteString(strconv.Itoa(spec.precision))
	} else if base == 'f' {
		format.WriteString(".6")
	}
	format.WriteByte(base)
	return format.String()
}

func getDefaultValue(specifier string) string {
	switch specifier {
	case "d", "i", "x", "X", "o", "b":
		return "0"
	case "f":
		return "0"
	}
	return ""
}

// shellQuote renders a value so that eval-ing it reproduces the original
// bytes: the %q contract.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	printable := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c >= 0x7f {
			printable = false
			safe = false
			break
		}
		if !isShellSafe(c) {
			safe = false
		}
	}
	if safe {
		return s
	}
	if printable {
		// Single quotes with embedded quotes escaped.
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	// ANSI-C quoting for control bytes and raw data.
	var sb strings.Builder
	sb.WriteString("$'")
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case '\\':
			sb.WriteString(`\\`)
		case '\'':
			sb.WriteString(`\'`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&sb, `\x%02x`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteString("'")
	return sb.String()
}

func isShellSafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '-' || c == '.' || c == '/' || c == ':' || c == '=' ||
		c == '+' || c == '%' || c == '@' || c == ',':
		return true
	}
	return false
}

// processEscapeSequences decodes printf/echo backslash escapes.
func processEscapeSequences(s string) string {
	var result strings.Builder
	i := 0
	for i < len(s) {
		if s[i] != '\\' || i+1 >= len(s) {
			result.WriteByte(s[i])
			i++
			continue
		}
		switch s[i+1] {
		case 'n':
			result.WriteByte('\n')
			i += 2
		case 't':
			result.WriteByte('\t')
			i += 2
		case 'r':
			result.WriteByte('\r')
			i += 2
		case 'b':
			result.WriteByte('\b')
			i += 2
		case 'a':
			result.WriteByte('\a')
			i += 2
		case 'f':
			result.WriteByte('\f')
			i += 2
		case 'v':
			result.WriteByte('\v')
			i += 2
		case 'e':
			result.WriteByte(0x1b)
			i += 2
		case '\\':
			result.WriteByte('\\')
			i += 2
		case '"':
			result.WriteByte('"')
			i += 2
		case '\'':
			result.WriteByte('\'')
			i += 2
		case '0', '1', '2', '3', '4', '5', '6', '7':
			octal := ""
			j := i + 1
			for j < len(s) && j < i+4 && s[j] >= '0' && s[j] <= '7' {
				octal += string(s[j])
				j++
			}
			if num, err := strconv.ParseInt(octal, 8, 32); err == nil {
				result.WriteByte(byte(num))
			}
			i = j
		case 'x':
			if i+3 <= len(s)+1 {
				end := i + 2
				for end < len(s) && end < i+4 && isHexDigit(s[end]) {
					end++
				}
				if end > i+2 {
					if num, err := strconv.ParseInt(s[i+2:end], 16, 32); err == nil {
						result.WriteByte(byte(num))
						i = end
						continue
					}
				}
			}
			result.WriteByte('\\')
			i++
		default:
			result.WriteByte('\\')
			i++
		}
	}
	return result.String()
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
