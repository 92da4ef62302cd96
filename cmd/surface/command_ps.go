package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"surface/internal/engine"
	"surface/internal/types"
)

type PSCommand struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func NewPSCommand(stdout, stderr io.Writer, newClient clientFactory) *PSCommand {
	return &PSCommand{stdout: stdout, stderr: stderr, newClient: newClient}
}

func (c *PSCommand) Run(args []string) error {
	fs := flag.NewFlagSet("ps", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	project := fs.String("project", "", "project path to list sessions for")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	backend, err := c.newClient()
	if err != nil {
		return err
	}
	eng := engine.New(backend)
	if err := eng.SetActiveProject(ctx, *project); err != nil {
		return err
	}
	printSessions(c.stdout, eng)
	return nil
}

func printSessions(out io.Writer, eng *engine.Engine) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tBRANCH\tMERGE\tDIFF\tTASK")
	for _, session := range eng.Sessions() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			session.ID,
			session.State,
			session.Branch,
			mergeColumn(eng.MergeStatus(session.ID)),
			diffColumn(session.DiffStats),
			session.CurrentTask,
		)
	}
	_ = w.Flush()
}

func mergeColumn(status types.MergeStatus) string {
	if status == types.MergeStatusNone {
		return "-"
	}
	return string(status)
}

func diffColumn(stats *types.DiffStats) string {
	if stats.IsEmpty() {
		return "-"
	}
	return fmt.Sprintf("%d files +%d -%d", stats.FilesChanged, stats.Additions, stats.Deletions)
}
