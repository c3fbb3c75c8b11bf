// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
	"github.com/bureau-foundation/scopeguard/lib/codec"
	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
	"github.com/bureau-foundation/scopeguard/lib/permission"
)

type verifyResult struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Subject     string         `json:"subject"`
	SubjectKey  string         `json:"subject_key"`
	Issuer      string         `json:"issuer"`
	IssuedAt    time.Time      `json:"issued_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Permissions permission.Set `json:"permissions"`
}

func (a *app) verifyCommand() *cli.Command {
	var (
		configPath string
		issuer     string
		revoked    []string
		diagnostic bool
		logLevel   string
		output     cli.JSONOutput
	)
	return &cli.Command{
		Name:    "verify",
		Summary: "Verify a credential token or envelope",
		Description: `Verify a credential against a trusted issuer and print its claims.
The argument is a file holding a bare token or a credential envelope,
or "-" for stdin. The issuer comes from --issuer or issuer.public_id
in the config.`,
		Usage: "scopeguard verify [--issuer ID] [--config FILE] <file|->",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flagSet.StringVarP(&configPath, "config", "c", "", "config file (default $SCOPEGUARD_CONFIG)")
			flagSet.StringVar(&issuer, "issuer", "", "trusted issuer public ID")
			flagSet.StringSliceVar(&revoked, "revoked", nil, "revoked credential ID (repeatable)")
			flagSet.BoolVar(&diagnostic, "cbor", false, "also print the signed claims in CBOR diagnostic notation")
			output.AddFlag(flagSet)
			a.logLevelFlag(flagSet, &logLevel)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("verify takes exactly one file argument")
			}
			if err := a.applyLogLevel(logLevel); err != nil {
				return err
			}
			if issuer == "" {
				cfg, err := loadConfig(configPath, true)
				if err != nil {
					return err
				}
				issuer = cfg.Issuer.PublicID
			}
			if !nkey.ValidPublicID(issuer, nkey.KindIssuer) {
				return fmt.Errorf("a trusted issuer public ID is required (--issuer or issuer.public_id), got %q", issuer)
			}

			data, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			token, err := readToken(data)
			if err != nil {
				return err
			}
			decoded, err := credential.Decode(token)
			if err != nil {
				return err
			}

			now := a.clock.Now()
			revocations := credential.NewRevocationList()
			for _, id := range revoked {
				// The expiry only drives Cleanup, which never runs here.
				revocations.Revoke(id, now.Add(time.Hour))
			}
			verified, err := credential.NewVerifier(nkey.Default(), credential.WithRevocations(revocations)).
				Verify(decoded, issuer, now)
			if err != nil {
				a.logger("verify").Warn("credential rejected", "credential", decoded.Claims.ID, "error", err)
				return err
			}

			claims := verified.Claims
			result := verifyResult{
				ID:          claims.ID,
				Name:        claims.Name,
				Subject:     claims.Subject,
				SubjectKey:  claims.SubjectKey,
				Issuer:      claims.Issuer,
				IssuedAt:    time.Unix(claims.IssuedAt, 0).UTC(),
				ExpiresAt:   verified.ExpiresAt.UTC(),
				Permissions: verified.Permissions,
			}
			if done, err := output.EmitJSON(a.stdout, result); done {
				return err
			}
			fmt.Fprintf(a.stdout, "credential %s valid\n", result.ID)
			if result.Name != "" {
				fmt.Fprintf(a.stdout, "  name:        %s\n", result.Name)
			}
			fmt.Fprintf(a.stdout, "  subject:     %s\n", result.Subject)
			fmt.Fprintf(a.stdout, "  subject key: %s\n", result.SubjectKey)
			fmt.Fprintf(a.stdout, "  expires:     %s (in %s)\n",
				result.ExpiresAt.Format(time.RFC3339), verified.ExpiresAt.Sub(now).Truncate(time.Second))
			writeRules(a, "publish", verified.Permissions.Publish)
			writeRules(a, "subscribe", verified.Permissions.Subscribe)
			if diagnostic {
				encoded, err := codec.Marshal(claims)
				if err != nil {
					return err
				}
				notation, err := codec.Diagnose(encoded)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "  claims:      %s\n", notation)
			}
			return nil
		},
	}
}

func writeRules(a *app, operation string, rules permission.Rules) {
	fmt.Fprintf(a.stdout, "  %s allow: %s\n", operation, formatPatterns(rules.Allow))
	fmt.Fprintf(a.stdout, "  %s deny:  %s\n", operation, formatPatterns(rules.Deny))
}

func formatPatterns(patterns []string) string {
	if len(patterns) == 0 {
		return "(none)"
	}
	return strings.Join(patterns, ", ")
}
