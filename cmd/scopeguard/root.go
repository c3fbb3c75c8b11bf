// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
)

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name:    "scopeguard",
		Summary: "Scoped pub/sub credential tool",
		Description: `scopeguard issues short-lived credentials that bind an identity to
publish and subscribe permissions, verifies them, evaluates
authorization decisions, and runs a broker and probe that exercise
the permissions end to end.`,
		Subcommands: []*cli.Command{
			a.keygenCommand(),
			a.issueCommand(),
			a.verifyCommand(),
			a.authorizeCommand(),
			a.brokerCommand(),
			a.probeCommand(),
			a.versionCommand(),
		},
		Output: a.stderr,
	}
}
