// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
	"github.com/bureau-foundation/scopeguard/lib/sealed"
)

type keygenResult struct {
	Kind     string `json:"kind"`
	PublicID string `json:"public_id"`
	Sealed   bool   `json:"sealed"`
	Path     string `json:"path,omitempty"`
}

func (a *app) keygenCommand() *cli.Command {
	var (
		kind     string
		out      string
		sealTo   []string
		logLevel string
		output   cli.JSONOutput
	)
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an issuer, subject, or age keypair",
		Description: `Generate a keypair and write its seed to --out (stdout by default).
The public ID is printed on stdout when the seed goes to a file.

--seal-to encrypts the seed to one or more age recipients so it can
be stored at rest. Use --kind age to create such a recipient: the
age identity is written to --out and its public key is printed.`,
		Usage: "scopeguard keygen [--kind issuer|subject|age] [--out FILE] [--seal-to AGE-RECIPIENT]",
		Examples: []cli.Example{
			{Description: "Create an age identity for sealing seeds", Command: "scopeguard keygen --kind age --out issuer.age"},
			{Description: "Create a sealed issuer seed", Command: "scopeguard keygen --out issuer.seed --seal-to age1..."},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVar(&kind, "kind", "issuer", "key kind: issuer, subject, or age")
			flagSet.StringVarP(&out, "out", "o", "", "seed output file (stdout if empty)")
			flagSet.StringSliceVar(&sealTo, "seal-to", nil, "age recipient to encrypt the seed to (repeatable)")
			output.AddFlag(flagSet)
			a.logLevelFlag(flagSet, &logLevel)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("keygen takes no arguments, got %q", args)
			}
			if err := a.applyLogLevel(logLevel); err != nil {
				return err
			}
			if kind == "age" {
				return a.ageKeygen(out, sealTo, &output)
			}
			return a.nkeyKeygen(kind, out, sealTo, &output)
		},
	}
}

func (a *app) nkeyKeygen(kindName, out string, sealTo []string, output *cli.JSONOutput) error {
	kind, err := nkey.ParseKind(kindName)
	if err != nil {
		return err
	}
	for _, recipient := range sealTo {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return err
		}
	}

	pair, err := nkey.Default().Generate(kind)
	if err != nil {
		return err
	}
	defer pair.Close()

	seed, err := pair.EncodedSeed()
	if err != nil {
		return err
	}
	defer seed.Close()

	data := append(append([]byte(nil), seed.Bytes()...), '\n')
	if len(sealTo) > 0 {
		ciphertext, err := sealed.Encrypt(seed.Bytes(), sealTo)
		if err != nil {
			return err
		}
		data = ciphertext
	}
	if err := a.writeSecret(out, data); err != nil {
		return fmt.Errorf("writing seed: %w", err)
	}

	a.logger("keygen").Info("generated keypair",
		"kind", kind.String(),
		"public_id", pair.PublicID(),
		"sealed", len(sealTo) > 0,
	)
	return a.reportKey(out, output, keygenResult{
		Kind:     kind.String(),
		PublicID: pair.PublicID(),
		Sealed:   len(sealTo) > 0,
		Path:     out,
	})
}

func (a *app) ageKeygen(out string, sealTo []string, output *cli.JSONOutput) error {
	if len(sealTo) > 0 {
		return fmt.Errorf("--seal-to does not apply to --kind age")
	}
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return err
	}
	defer keypair.Close()

	data := append(append([]byte(nil), keypair.PrivateKey.Bytes()...), '\n')
	if err := a.writeSecret(out, data); err != nil {
		return fmt.Errorf("writing age identity: %w", err)
	}
	return a.reportKey(out, output, keygenResult{
		Kind:     "age",
		PublicID: keypair.PublicKey,
		Path:     out,
	})
}

// reportKey prints the public half. It goes to stderr when the secret
// itself went to stdout.
func (a *app) reportKey(out string, output *cli.JSONOutput, result keygenResult) error {
	w := a.stdout
	if out == "" || out == "-" {
		w = a.stderr
	}
	if done, err := output.EmitJSON(w, result); done {
		return err
	}
	_, err := fmt.Fprintln(w, result.PublicID)
	return err
}
