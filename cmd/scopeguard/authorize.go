// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
	"github.com/bureau-foundation/scopeguard/lib/permission"
)

type authorizeResult struct {
	Operation   string `json:"operation"`
	Topic       string `json:"topic"`
	Allowed     bool   `json:"allowed"`
	MatchedRule string `json:"matched_rule,omitempty"`
	Reason      string `json:"reason"`
}

func (a *app) authorizeCommand() *cli.Command {
	var (
		configPath     string
		credentialPath string
		issuer         string
		logLevel       string
		permissions    permissionFlags
		output         cli.JSONOutput
	)
	return &cli.Command{
		Name:    "authorize",
		Summary: "Evaluate a publish or subscribe request against a permission set",
		Description: `Print the enforcement decision for one operation on one topic.
Exits 0 when allowed and 1 when denied.

The permission set is taken from the first of: --credential (verified
against --issuer), --permissions or the inline pattern flags, and the
credential section of the config file.`,
		Usage: "scopeguard authorize [flags] <publish|subscribe> <topic>",
		Examples: []cli.Example{
			{
				Description: "Check a wildcard subscription against an issued credential",
				Command:     "scopeguard authorize --credential john-doe.creds --issuer A... subscribe 'users.*.secrets'",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("authorize", pflag.ContinueOnError)
			flagSet.StringVarP(&configPath, "config", "c", "", "config file (default $SCOPEGUARD_CONFIG)")
			flagSet.StringVar(&credentialPath, "credential", "", "credential token or envelope file to take permissions from")
			flagSet.StringVar(&issuer, "issuer", "", "trusted issuer public ID for --credential")
			permissions.register(flagSet)
			output.AddFlag(flagSet)
			a.logLevelFlag(flagSet, &logLevel)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("authorize takes an operation and a topic")
			}
			if err := a.applyLogLevel(logLevel); err != nil {
				return err
			}
			operation, err := permission.ParseOperation(args[0])
			if err != nil {
				return err
			}

			var set permission.Set
			switch {
			case credentialPath != "":
				if set, err = a.credentialPermissions(credentialPath, issuer, configPath); err != nil {
					return err
				}
			case permissions.set():
				if set, err = permissions.resolve(); err != nil {
					return err
				}
			default:
				cfg, err := loadConfig(configPath, false)
				if err != nil {
					return err
				}
				set = cfg.Credential.Permissions
			}

			policy, err := permission.Compile(set)
			if err != nil {
				return err
			}
			decision := policy.Authorize(operation, args[1])
			a.logger("authorize").Debug("decision", "decision", decision.String())

			result := authorizeResult{
				Operation:   decision.Operation.String(),
				Topic:       decision.Topic,
				Allowed:     decision.Allowed,
				MatchedRule: decision.MatchedRule,
				Reason:      decision.Reason.String(),
			}
			done, err := output.EmitJSON(a.stdout, result)
			if !done {
				_, err = fmt.Fprintln(a.stdout, cli.NewStyles(a.stdout).Verdict(decision.Allowed, decision.String()))
			}
			if err != nil {
				return err
			}
			if !decision.Allowed {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// credentialPermissions verifies the credential at path and returns
// its permission set.
func (a *app) credentialPermissions(path, issuer, configPath string) (permission.Set, error) {
	if issuer == "" {
		cfg, err := loadConfig(configPath, true)
		if err != nil {
			return permission.Set{}, err
		}
		issuer = cfg.Issuer.PublicID
	}
	if issuer == "" {
		return permission.Set{}, fmt.Errorf("--credential requires --issuer or issuer.public_id")
	}
	data, err := a.readInput(path)
	if err != nil {
		return permission.Set{}, err
	}
	token, err := readToken(data)
	if err != nil {
		return permission.Set{}, err
	}
	decoded, err := credential.Decode(token)
	if err != nil {
		return permission.Set{}, err
	}
	verified, err := credential.NewVerifier(nkey.Default()).Verify(decoded, issuer, a.clock.Now())
	if err != nil {
		return permission.Set{}, err
	}
	return verified.Permissions, nil
}
