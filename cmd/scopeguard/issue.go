// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
)

type issueResult struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Name       string    `json:"name,omitempty"`
	SubjectKey string    `json:"subject_key"`
	Issuer     string    `json:"issuer"`
	ExpiresAt  time.Time `json:"expires_at"`
	Path       string    `json:"path,omitempty"`
}

func (a *app) issueCommand() *cli.Command {
	var (
		configPath  string
		identity    string
		name        string
		ttl         time.Duration
		issuerSeed  string
		ageIdentity string
		out         string
		logLevel    string
		permissions permissionFlags
		output      cli.JSONOutput
	)
	return &cli.Command{
		Name:    "issue",
		Summary: "Issue a credential envelope for an identity",
		Description: `Generate a subject keypair and issue a credential binding the identity
to a permission set. The output is a credential envelope holding the
token and the subject seed.

Values come from the config file (--config or SCOPEGUARD_CONFIG) when
one is given; flags override them. Inline permission flags and
--permissions replace the configured permission set.`,
		Usage: "scopeguard issue [--config FILE] [--identity ID] [--permissions FILE] [--out FILE]",
		Examples: []cli.Example{
			{
				Description: "Issue from a config file",
				Command:     "scopeguard issue --config scopeguard.yaml --out john-doe.creds",
			},
			{
				Description: "Issue with inline permissions",
				Command:     "scopeguard issue --issuer-seed issuer.seed --identity john-doe --pub-allow 'users.john-doe.>' --sub-allow 'users.john-doe.>'",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("issue", pflag.ContinueOnError)
			flagSet.StringVarP(&configPath, "config", "c", "", "config file (default $SCOPEGUARD_CONFIG)")
			flagSet.StringVar(&identity, "identity", "", "subject identity")
			flagSet.StringVar(&name, "name", "", "credential display name")
			flagSet.DurationVar(&ttl, "ttl", 0, "credential lifetime (default from config, 30m)")
			flagSet.StringVar(&issuerSeed, "issuer-seed", "", "issuer seed file, plain or age-sealed")
			flagSet.StringVar(&ageIdentity, "age-identity", "", "age identity file for a sealed issuer seed")
			flagSet.StringVarP(&out, "out", "o", "", "envelope output file (stdout if empty)")
			permissions.register(flagSet)
			output.AddFlag(flagSet)
			a.logLevelFlag(flagSet, &logLevel)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("issue takes no arguments, got %q", args)
			}
			if err := a.applyLogLevel(logLevel); err != nil {
				return err
			}
			cfg, err := loadConfig(configPath, true)
			if err != nil {
				return err
			}
			if identity != "" {
				cfg.Credential.Identity = identity
			}
			if name != "" {
				cfg.Credential.Name = name
			}
			if ttl != 0 {
				cfg.Credential.TTL = ttl.String()
			}
			if issuerSeed != "" {
				cfg.Issuer.SeedFile = issuerSeed
			}
			if ageIdentity != "" {
				cfg.Issuer.AgeIdentityFile = ageIdentity
			}
			if permissions.set() {
				set, err := permissions.resolve()
				if err != nil {
					return err
				}
				cfg.Credential.Permissions = set
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			issuer, err := loadIssuer(cfg.Issuer.SeedFile, cfg.Issuer.AgeIdentityFile, cfg.Issuer.PublicID)
			if err != nil {
				return err
			}
			defer issuer.Close()

			subjectKey, err := nkey.Default().Generate(nkey.KindSubject)
			if err != nil {
				return err
			}
			defer subjectKey.Close()

			issued, err := credential.NewIssuer(issuer, a.clock).Issue(credential.IssueRequest{
				Subject:     cfg.Credential.Identity,
				Name:        cfg.Credential.Name,
				SubjectKey:  subjectKey.PublicID(),
				Permissions: cfg.Credential.Permissions,
				TTL:         cfg.Credential.TTLDuration(),
			})
			if err != nil {
				return err
			}
			token, err := credential.Encode(issued)
			if err != nil {
				return err
			}
			seed, err := subjectKey.EncodedSeed()
			if err != nil {
				return err
			}
			defer seed.Close()

			if err := a.writeSecret(out, credential.FormatEnvelope(token, seed.Bytes())); err != nil {
				return fmt.Errorf("writing envelope: %w", err)
			}

			a.logger("issue").Info("issued credential",
				"credential", issued.Claims.ID,
				"subject", issued.Claims.Subject,
				"issuer", issued.Claims.Issuer,
				"expires_at", issued.Claims.Expiry(),
			)

			result := issueResult{
				ID:         issued.Claims.ID,
				Subject:    issued.Claims.Subject,
				Name:       issued.Claims.Name,
				SubjectKey: issued.Claims.SubjectKey,
				Issuer:     issued.Claims.Issuer,
				ExpiresAt:  issued.Claims.Expiry().UTC(),
				Path:       out,
			}
			if out == "" || out == "-" {
				// The envelope owns stdout.
				return nil
			}
			if done, err := output.EmitJSON(a.stdout, result); done {
				return err
			}
			_, err = fmt.Fprintf(a.stdout, "%s issued to %s, expires %s\n",
				result.ID, result.Subject, result.ExpiresAt.Format(time.RFC3339))
			return err
		},
	}
}
