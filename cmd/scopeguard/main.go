// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command scopeguard issues, verifies, and exercises scoped pub/sub
// credentials.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
	"github.com/bureau-foundation/scopeguard/lib/clock"
)

// app carries the process environment every command writes to.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	clock clock.Clock

	// logLevel is set by each command's --log-level flag.
	logLevel slog.Level

	// newLogger builds the command logger. Tests replace it.
	newLogger func(level slog.Level) *slog.Logger

	// rootContext returns the context for long-running commands.
	rootContext func() (context.Context, context.CancelFunc)
}

func newApp() *app {
	return &app{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		clock:       clock.Real(),
		logLevel:    slog.LevelInfo,
		newLogger:   cli.NewCommandLogger,
		rootContext: signalContext,
	}
}

// signalContext is cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func (a *app) logger(command string) *slog.Logger {
	return a.newLogger(a.logLevel).With("command", command)
}

func main() {
	err := newApp().root().Execute(os.Args[1:])
	code, report := cli.ExitCode(err)
	if report {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(code)
}
