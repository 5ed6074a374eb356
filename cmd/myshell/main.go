// Command myshell is an interactive POSIX-flavored shell: a parser, line
// editor, executor, and job-control subsystem wired together by
// internal/shell. Grounded on the teacher's cmd/llmsh/main.go manual
// flag-parsing loop, trimmed to the flags this shell actually supports and
// swapping its os.Stdin.Stat() tty check for github.com/mattn/go-isatty.
package main

import (
	"fmt"
	"io"
	"os"

	isatty "github.com/mattn/go-isatty"

	"github.com/mako10k/myshell/internal/shell"
)

func main() {
	var script string
	var scriptFile string

	args := os.Args[1:]
	i := 0
	for i < len(args) {
		arg := args[i]
		switch arg {
		case "-c":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "Error: option %s requires an argument\n", arg)
				os.Exit(1)
			}
			if script != "" || scriptFile != "" {
				fmt.Fprintln(os.Stderr, "Error: cannot specify both -c option and script file")
				os.Exit(1)
			}
			i++
			script = args[i]
		case "--help", "-h":
			printUsage()
			return
		case "--version":
			fmt.Printf("myshell version %s\n", shell.Version)
			return
		default:
			if len(arg) > 0 && arg[0] == '-' {
				fmt.Fprintf(os.Stderr, "Error: unknown option: %s\n", arg)
				printUsage()
				os.Exit(1)
			}
			if script != "" {
				fmt.Fprintln(os.Stderr, "Error: cannot specify both -c option and script file")
				os.Exit(1)
			}
			if scriptFile != "" {
				fmt.Fprintf(os.Stderr, "Error: multiple script files specified: %s and %s\n", scriptFile, arg)
				os.Exit(1)
			}
			scriptFile = arg
		}
		i++
	}

	if scriptFile != "" {
		content, err := os.ReadFile(scriptFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading script file %s: %v\n", scriptFile, err)
			os.Exit(1)
		}
		script = string(content)
	}

	interactive := false
	if script == "" {
		if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
			interactive = true
		} else {
			content, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading from stdin: %v\n", err)
				os.Exit(1)
			}
			script = string(content)
		}
	}

	sh, err := shell.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting myshell: %v\n", err)
		os.Exit(1)
	}

	if interactive {
		if err := sh.Interactive(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			sh.Close()
			os.Exit(1)
		}
	} else {
		if err := sh.RunBatch(script); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			sh.Close()
			os.Exit(1)
		}
	}

	sh.Close()
	os.Exit(sh.ExitCode())
}

func printUsage() {
	fmt.Printf("Usage: %s [options] [script]\n\n", os.Args[0])
	fmt.Println("Options:")
	fmt.Println("  -c <script>   Execute script string")
	fmt.Println("  -h, --help    Show this help")
	fmt.Println("  --version     Show version")
	fmt.Println("")
	fmt.Println("Arguments:")
	fmt.Println("  script        Script file to execute (mutually exclusive with -c)")
	fmt.Println("")
	fmt.Println("Note: -c and a script file are mutually exclusive.")
	fmt.Println("      If neither is given, myshell reads from stdin if it is not a")
	fmt.Println("      terminal, or starts the interactive line editor if it is.")
	fmt.Println("")
	fmt.Println("Examples:")
	fmt.Printf("  %s -c 'echo hello | grep ello'\n", os.Args[0])
	fmt.Printf("  echo 'ls | wc -l' | %s\n", os.Args[0])
	fmt.Printf("  %s script.myshell\n", os.Args[0])
	fmt.Printf("  %s  # interactive mode\n", os.Args[0])
}
