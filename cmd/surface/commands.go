package main

import (
	"context"
	"io"
	"os"

	surfaceclient "surface/internal/client"
	"surface/internal/engine"
	"surface/internal/types"
)

type commandRunner interface {
	Run(args []string) error
}

// backendClient is what the commands need from the daemon client: the
// engine's RPC surface plus the push-event stream.
type backendClient interface {
	engine.Backend
	Events(ctx context.Context, projectPath string) (<-chan types.PushEvent, func(), error)
}

type clientFactory func() (backendClient, error)

func defaultClientFactory() (backendClient, error) {
	return surfaceclient.New()
}

type commandWiring struct {
	stdout    io.Writer
	stderr    io.Writer
	newClient clientFactory
}

func defaultCommandWiring(stdout, stderr io.Writer) commandWiring {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdout:    stdout,
		stderr:    stderr,
		newClient: defaultClientFactory,
	}
}

func buildCommands(wiring commandWiring) map[string]commandRunner {
	return map[string]commandRunner{
		"ps":     NewPSCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"watch":  NewWatchCommand(wiring.stdout, wiring.stderr, wiring.newClient),
		"config": NewConfigCommand(wiring.stdout, wiring.stderr),
	}
}
