package main

import (
	"fmt"
	"os"
)

const usageText = `surface drives the session reconciliation engine from the terminal.

Usage:
  surface <command> [flags]

Commands:
  ps       list sessions for a project
  watch    follow push events and print session changes
  config   print effective configuration
  help     show help

Flags:
  -h, --help   show help

Examples:
  surface ps --project /path/to/repo
  surface watch --project /path/to/repo
  surface config
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}

	wiring := defaultCommandWiring(os.Stdout, os.Stderr)
	commands := buildCommands(wiring)

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	}

	runner, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
	if err := runner.Run(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
