// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
	"github.com/bureau-foundation/scopeguard/lib/version"
)

func (a *app) versionCommand() *cli.Command {
	var (
		short  bool
		output cli.JSONOutput
	)
	return &cli.Command{
		Name:    "version",
		Summary: "Print build information",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flagSet.BoolVar(&short, "short", false, "print only the version number")
			output.AddFlag(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if done, err := output.EmitJSON(a.stdout, version.Current()); done {
				return err
			}
			if short {
				_, err := fmt.Fprintln(a.stdout, version.Short())
				return err
			}
			_, err := fmt.Fprintln(a.stdout, version.Full())
			return err
		},
	}
}
