package bish

import (
	"fmt"
	"strconv"
)

// getoptsBuiltin implements POSIX getopts over the positional parameters
// (or explicit args). State lives in OPTIND plus an internal character index
// for bundled options like -ab.
func getoptsBuiltin(in *Interp, args []string) (int, error) {
	if len(args) < 2 {
		in.errf("bish: getopts: usage: getopts optstring name [arg ...]\n")
		return 2, nil
	}
	optstring := args[0]
	name := args[1]
	if !isValidName(name) {
		in.errf("bish: getopts: `%s': not a valid identifier\n", name)
		return 2, nil
	}
	silent := false
	if len(optstring) > 0 && optstring[0] == ':' {
		silent = true
		optstring = optstring[1:]
	}
	words := in.state.Positional()
	if len(args) > 2 {
		words = args[2:]
	}

	optindStr, _ := in.state.Get("OPTIND")
	optind, err := strconv.Atoi(optindStr)
	if err != nil || optind < 1 {
		optind = 1
	}
	// A change of OPTIND from outside resets the intra-word position.
	if optind != in.state.getoptsLastInd {
		in.state.getoptsPos = 0
	}

	fail := func() (int, error) {
		_ = in.state.Set(name, "?")
		return 1, nil
	}

	for {
		if optind > len(words) {
			return fail()
		}
		word := words[optind-1]
		if in.state.getoptsPos == 0 {
			if len(word) < 2 || word[0] != '-' || word == "--" {
				if word == "--" {
					optind++
					in.setOptind(optind)
				}
				return fail()
			}
			in.state.getoptsPos = 1
		}
		if in.state.getoptsPos >= len(word) {
			optind++
			in.setOptind(optind)
			in.state.getoptsPos = 0
			continue
		}
		opt := word[in.state.getoptsPos]
		in.state.getoptsPos++
		if in.state.getoptsPos >= len(word) {
			optind++
			in.state.getoptsPos = 0
		}

		spec := indexOptstring(optstring, opt)
		if opt == ':' || spec < 0 {
			if silent {
				_ = in.state.Set(name, "?")
				_ = in.state.Set("OPTARG", string(opt))
			} else {
				in.errf("bish: getopts: illegal option -- %c\n", opt)
				_ = in.state.Set(name, "?")
				_ = in.state.Unset("OPTARG")
			}
			in.setOptind(optind)
			return 0, nil
		}

		needsArg := spec+1 < len(optstring) && optstring[spec+1] == ':'
		if !needsArg {
			_ = in.state.Set(name, string(opt))
			_ = in.state.Unset("OPTARG")
			in.setOptind(optind)
			return 0, nil
		}

		// Argument: remainder of this word, or the next word.
		var optarg string
		if in.state.getoptsPos > 0 {
			optarg = word[in.state.getoptsPos:]
			in.state.getoptsPos = 0
			optind++
		} else if optind <= len(words) {
			optarg = words[optind-1]
			optind++
		} else {
			if silent {
				_ = in.state.Set(name, ":")
				_ = in.state.Set("OPTARG", string(opt))
			} else {
				in.errf("bish: getopts: option requires an argument -- %c\n", opt)
				_ = in.state.Set(name, "?")
				_ = in.state.Unset("OPTARG")
			}
			in.setOptind(optind)
			return 0, nil
		}
		_ = in.state.Set(name, string(opt))
		_ = in.state.Set("OPTARG", optarg)
		in.setOptind(optind)
		return 0, nil
	}
}

func (in *Interp) setOptind(v int) {
	_ = in.state.Set("OPTIND", fmt.Sprintf("%d", v))
	in.state.getoptsLastInd = v
}

func indexOptstring(optstring string, opt byte) int {
	for i := 0; i < len(optstring); i++ {
		if optstring[i] == opt {
			return i
		}
	}
	return -1
}
