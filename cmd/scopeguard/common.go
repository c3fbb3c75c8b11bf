// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
	"github.com/bureau-foundation/scopeguard/lib/config"
	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
	"github.com/bureau-foundation/scopeguard/lib/permission"
	"github.com/bureau-foundation/scopeguard/lib/sealed"
	"github.com/bureau-foundation/scopeguard/lib/secret"
)

// logLevelFlag registers --log-level on flagSet.
func (a *app) logLevelFlag(flagSet *pflag.FlagSet, level *string) {
	flagSet.StringVar(level, "log-level", "info", "log level (debug, info, warn, error)")
}

func (a *app) applyLogLevel(name string) error {
	level, err := cli.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	a.logLevel = level
	return nil
}

// loadConfig loads path, or the file named by SCOPEGUARD_CONFIG when
// path is empty. With neither set it returns the defaults when
// optional is true.
func loadConfig(path string, optional bool) (*config.Config, error) {
	switch {
	case path != "":
		return config.LoadFile(path)
	case os.Getenv(config.EnvironmentVariable) != "":
		return config.Load()
	case optional:
		return config.Default(), nil
	default:
		return config.Load()
	}
}

// permissionFlags are the inline permission flags shared by issue and
// authorize. Inline patterns are appended to any loaded from a file.
type permissionFlags struct {
	file           string
	publishAllow   []string
	publishDeny    []string
	subscribeAllow []string
	subscribeDeny  []string
}

func (p *permissionFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&p.file, "permissions", "", "JSONC file with a permission set ({\"pub\": {...}, \"sub\": {...}})")
	flagSet.StringSliceVar(&p.publishAllow, "pub-allow", nil, "publish allow pattern (repeatable)")
	flagSet.StringSliceVar(&p.publishDeny, "pub-deny", nil, "publish deny pattern (repeatable)")
	flagSet.StringSliceVar(&p.subscribeAllow, "sub-allow", nil, "subscribe allow pattern (repeatable)")
	flagSet.StringSliceVar(&p.subscribeDeny, "sub-deny", nil, "subscribe deny pattern (repeatable)")
}

func (p *permissionFlags) set() bool {
	return p.file != "" || len(p.publishAllow)+len(p.publishDeny)+len(p.subscribeAllow)+len(p.subscribeDeny) > 0
}

// resolve returns the permission set described by the flags.
func (p *permissionFlags) resolve() (permission.Set, error) {
	var set permission.Set
	if p.file != "" {
		loaded, err := readPermissionFile(p.file)
		if err != nil {
			return permission.Set{}, err
		}
		set = loaded
	}
	set.Publish.Allow = append(set.Publish.Allow, p.publishAllow...)
	set.Publish.Deny = append(set.Publish.Deny, p.publishDeny...)
	set.Subscribe.Allow = append(set.Subscribe.Allow, p.subscribeAllow...)
	set.Subscribe.Deny = append(set.Subscribe.Deny, p.subscribeDeny...)
	return set, nil
}

// readPermissionFile parses a JSON-with-comments permission set.
func readPermissionFile(path string) (permission.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return permission.Set{}, fmt.Errorf("reading permissions: %w", err)
	}
	return parsePermissions(data)
}

func parsePermissions(data []byte) (permission.Set, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	var set permission.Set
	if err := decoder.Decode(&set); err != nil {
		return permission.Set{}, fmt.Errorf("parsing permissions: %w", err)
	}
	return set, nil
}

// loadIssuer reads the issuer seed, decrypting it with identityPath
// when sealed, and checks it against expectedPublicID when set.
func loadIssuer(seedPath, identityPath, expectedPublicID string) (*nkey.KeyPair, error) {
	if seedPath == "" {
		return nil, fmt.Errorf("issuer seed file is required (--issuer-seed or issuer.seed_file)")
	}
	seed, err := sealed.ReadSeed(seedPath, identityPath)
	if err != nil {
		return nil, fmt.Errorf("loading issuer seed: %w", err)
	}
	defer seed.Close()

	pair, err := nkey.Default().FromSeed(seed.Bytes())
	if err != nil {
		return nil, fmt.Errorf("loading issuer seed: %w", err)
	}
	if pair.Kind() != nkey.KindIssuer {
		pair.Close()
		return nil, fmt.Errorf("%s holds a %s seed, want issuer", seedPath, pair.Kind())
	}
	if expectedPublicID != "" && pair.PublicID() != expectedPublicID {
		pair.Close()
		return nil, fmt.Errorf("issuer seed %s does not match issuer.public_id %s", pair.PublicID(), expectedPublicID)
	}
	return pair, nil
}

// readInput reads a file argument, or stdin for "-".
func (a *app) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.stdin)
	}
	return os.ReadFile(path)
}

// readToken accepts either a bare token or a credential envelope.
func readToken(data []byte) (string, error) {
	if !bytes.Contains(data, []byte("BEGIN ")) {
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", fmt.Errorf("%w: empty input", credential.ErrMalformedCredential)
		}
		return token, nil
	}
	envelope, err := credential.ParseEnvelope(data)
	if err != nil {
		return "", err
	}
	defer envelope.Close()
	return envelope.Token, nil
}

// writeOutput writes data to path with owner-only permissions, or to
// stdout when path is empty or "-".
func (a *app) writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := a.stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// writeSecret is writeOutput for data holding key material. data is
// zeroed before writeSecret returns, whether or not the write worked.
func (a *app) writeSecret(path string, data []byte) error {
	defer secret.Zero(data)
	return a.writeOutput(path, data)
}
