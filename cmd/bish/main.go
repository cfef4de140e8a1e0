// Command bish is the interactive host for the sandboxed interpreter: a
// readline REPL over an in-memory filesystem, with persistent history and
// fuzzy suggestions for mistyped command names.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/term"

	"bish"
	"bish/coreutils"
)

func main() {
	command := flag.String("c", "", "run this command string and exit")
	seed := flag.Int64("seed", 0, "seed for $RANDOM")
	histPath := flag.String("history", "", "path to the history database")
	flag.Parse()

	env := map[string]string{
		"HOME": "/root",
		"PATH": "/usr/local/bin:/usr/bin:/bin",
		"PWD":  "/root",
	}
	state := bish.NewState(env, "/root", pickSeed(*seed))
	fs := bish.NewMemFS()
	_ = fs.Seed(map[string]string{"/root/": "", "/tmp/": ""})

	run := func(src string) bish.Result {
		return bish.Execute(src, bish.Options{
			State:          state,
			Filesystem:     fs,
			CustomCommands: coreutils.All(),
			RandomSeed:     pickSeed(*seed),
		})
	}

	if *command != "" {
		res := run(*command)
		os.Stdout.Write(res.Stdout)
		os.Stderr.Write(res.Stderr)
		os.Exit(res.ExitCode)
	}
	if flag.NArg() > 0 {
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "bish: %s: %v\n", flag.Arg(0), err)
			os.Exit(127)
		}
		res := run(string(data))
		os.Stdout.Write(res.Stdout)
		os.Stderr.Write(res.Stderr)
		os.Exit(res.ExitCode)
	}

	repl(state, run, *histPath)
}

func pickSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return 1
}

// repl is the interactive loop. It stays outside the interpreter core: line
// editing, persistent history and suggestions are host concerns.
func repl(state *bish.State, run func(string) bish.Result, histPath string) {
	session := uuid.New().String()
	var hist *HistoryManager
	if hm, err := NewHistoryManager(histPath); err == nil {
		hist = hm
		defer hist.Close()
	} else {
		fmt.Fprintf(os.Stderr, "bish: history disabled: %v\n", err)
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	completer := readline.NewPrefixCompleter(commandCompletions()...)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       prompt(state),
		AutoComplete: completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bish: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	if hist != nil {
		if recent, err := hist.Recent(200); err == nil {
			for _, line := range recent {
				_ = rl.SaveHistory(line)
			}
		}
	}

	if interactive {
		fmt.Println("bish — sandboxed shell (exit to leave)")
	}

	lastCode := 0
	for {
		rl.SetPrompt(prompt(state))
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		res := run(line)
		os.Stdout.Write(res.Stdout)
		os.Stderr.Write(res.Stderr)
		lastCode = res.ExitCode
		if hist != nil {
			_ = hist.Record(session, line, res.ExitCode)
		}
		if res.ExitCode == 127 {
			suggest(line)
		}
	}
	os.Exit(lastCode)
}

func prompt(state *bish.State) string {
	if ps1, ok := state.Get("PS1"); ok && ps1 != "" {
		return ps1
	}
	return "$ "
}

func commandCompletions() []readline.PrefixCompleterInterface {
	var items []readline.PrefixCompleterInterface
	for _, name := range allCommandNames() {
		items = append(items, readline.PcItem(name))
	}
	return items
}

func allCommandNames() []string {
	names := bish.BuiltinNames()
	for _, c := range coreutils.All() {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return names
}

// suggest prints close matches after a command-not-found failure.
func suggest(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	matches := fuzzy.RankFindFold(fields[0], allCommandNames())
	sort.Sort(matches)
	if len(matches) == 0 {
		return
	}
	n := len(matches)
	if n > 3 {
		n = 3
	}
	var names []string
	for _, m := range matches[:n] {
		names = append(names, m.Target)
	}
	fmt.Fprintf(os.Stderr, "did you mean: %s?\n", strings.Join(names, ", "))
}
