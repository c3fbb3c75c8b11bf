// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/scopeguard/lib/permission"
	"github.com/bureau-foundation/scopeguard/lib/probe"
)

const johnDoeConfig = `
issuer:
  seed_file: ${HOME}/issuer.seed
credential:
  identity: john-doe
  ttl: 45m
  permissions:
    pub:
      allow: ["users.${identity}.>"]
    sub:
      allow: ["users.${identity}.>"]
      deny: ["users.*.secrets"]
broker:
  address: 127.0.0.1:9000
probe:
  mode: enforce-local
  attempts:
    - operation: subscribe
      topic: users.>
      expect: denied
    - operation: subscribe
      topic: users.${identity}.notifications
      timeout: 1s
      expect: timeout
    - operation: publish
      topic: users.${identity}.status
      payload: online
`

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Credential.TTL != "30m" {
		t.Errorf("expected ttl=30m, got %s", cfg.Credential.TTL)
	}
	if cfg.Broker.Network != "tcp" || cfg.Broker.Address != "127.0.0.1:4222" {
		t.Errorf("expected tcp 127.0.0.1:4222, got %s %s", cfg.Broker.Network, cfg.Broker.Address)
	}
	if cfg.Probe.Mode != "probe-remote" {
		t.Errorf("expected mode=probe-remote, got %s", cfg.Probe.Mode)
	}
}

func TestParseExpandsIdentity(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	cfg, err := Parse([]byte(johnDoeConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if got := cfg.Credential.Permissions.Publish.Allow[0]; got != "users.john-doe.>" {
		t.Errorf("publish allow = %q", got)
	}
	if got := cfg.Credential.Permissions.Subscribe.Deny[0]; got != "users.*.secrets" {
		t.Errorf("subscribe deny = %q", got)
	}
	if cfg.Issuer.SeedFile != "/home/tester/issuer.seed" {
		t.Errorf("seed_file = %q", cfg.Issuer.SeedFile)
	}
	if cfg.Credential.TTLDuration() != 45*time.Minute {
		t.Errorf("ttl = %v", cfg.Credential.TTLDuration())
	}
	// Unset fields keep their defaults.
	if cfg.Broker.Network != "tcp" || cfg.Broker.QueueDepth != 256 {
		t.Errorf("broker = %+v", cfg.Broker)
	}

	expectations, err := cfg.Expectations()
	if err != nil {
		t.Fatalf("Expectations: %v", err)
	}
	if len(expectations) != 3 {
		t.Fatalf("expectations = %d, want 3", len(expectations))
	}
	second := expectations[1]
	if second.Topic != "users.john-doe.notifications" || second.Timeout != time.Second || second.Expect != probe.ExpectTimeout {
		t.Errorf("second = %+v", second)
	}
	third := expectations[2]
	if third.Operation != permission.Publish || string(third.Payload) != "online" || third.Expect != probe.ExpectAllowed {
		t.Errorf("third = %+v", third)
	}
}

func TestExpectationsDefaultScenario(t *testing.T) {
	cfg := Default()
	cfg.Credential.Identity = "alice"
	expectations, err := cfg.Expectations()
	if err != nil {
		t.Fatal(err)
	}
	if len(expectations) != 2 || expectations[1].Topic != "users.alice.notifications" {
		t.Errorf("expectations = %+v", expectations)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg, err := Parse([]byte(`
issuer:
  public_id: not-a-key
  age_identity_file: /tmp/age.key
credential:
  ttl: 500ms
  permissions:
    sub:
      allow: ["a.>.b"]
broker:
  network: udp
  queue_depth: -1
probe:
  mode: strict
  attempts:
    - operation: delete
      expect: maybe
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("Validate succeeded")
	}
	for _, want := range []string{
		"issuer.public_id",
		"issuer.age_identity_file",
		"credential.identity is required",
		"credential.ttl must be at least 1s",
		"credential.permissions",
		"broker.network",
		"broker.queue_depth",
		"probe.mode",
		"probe.attempts[0]",
		"topic is required",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error missing %q:\n%v", want, err)
		}
	}
}

func TestParseRejectsBadYAML(t *testing.T) {
	if _, err := Parse([]byte("credential: [unclosed")); err == nil {
		t.Error("Parse accepted malformed YAML")
	}
}

func TestLoad_RequiresScopeguardConfig(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error when SCOPEGUARD_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "SCOPEGUARD_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithScopeguardConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scopeguard.yaml")
	if err := os.WriteFile(path, []byte(johnDoeConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvironmentVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Credential.Identity != "john-doe" || cfg.Probe.Mode != "enforce-local" {
		t.Errorf("loaded %+v", cfg.Credential)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}
}
