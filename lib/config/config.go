// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/scopeguard/lib/nkey"
	"github.com/bureau-foundation/scopeguard/lib/permission"
	"github.com/bureau-foundation/scopeguard/lib/probe"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "SCOPEGUARD_CONFIG"

// Config is the scopeguard configuration file.
type Config struct {
	Issuer     IssuerConfig     `yaml:"issuer"`
	Credential CredentialConfig `yaml:"credential"`
	Broker     BrokerConfig     `yaml:"broker"`
	Probe      ProbeConfig      `yaml:"probe"`
}

// IssuerConfig locates the issuer key.
type IssuerConfig struct {
	// PublicID is the trusted issuer public ID for verification.
	PublicID string `yaml:"public_id"`

	// SeedFile is the issuer seed, plain or age-encrypted.
	SeedFile string `yaml:"seed_file"`

	// AgeIdentityFile decrypts SeedFile when it is age-encrypted.
	AgeIdentityFile string `yaml:"age_identity_file"`
}

// CredentialConfig describes the credential to issue.
type CredentialConfig struct {
	Identity string `yaml:"identity"`

	// Name defaults to "user-<identity>".
	Name string `yaml:"name"`

	// TTL is a Go duration string.
	// Default: 30m
	TTL string `yaml:"ttl"`

	Permissions permission.Set `yaml:"permissions"`
}

// BrokerConfig locates the stream broker.
type BrokerConfig struct {
	// Network is "tcp" or "unix".
	// Default: tcp
	Network string `yaml:"network"`

	// Address is host:port for tcp or a socket path for unix.
	// Default: 127.0.0.1:4222
	Address string `yaml:"address"`

	// QueueDepth is the per-subscription buffer.
	// Default: 256
	QueueDepth int `yaml:"queue_depth"`
}

// ProbeConfig configures the probe command.
type ProbeConfig struct {
	// Mode is "probe-remote" or "enforce-local".
	// Default: probe-remote
	Mode string `yaml:"mode"`

	// Attempts, when empty, runs the default scenario.
	Attempts []AttemptConfig `yaml:"attempts"`
}

// AttemptConfig is one probe step.
type AttemptConfig struct {
	// Operation is "publish" or "subscribe".
	Operation string `yaml:"operation"`
	Topic     string `yaml:"topic"`
	Payload   string `yaml:"payload"`

	// Timeout is a Go duration string.
	Timeout     string `yaml:"timeout"`
	MaxMessages int    `yaml:"max_messages"`

	// Expect is "allowed", "denied", or "timeout".
	Expect string `yaml:"expect"`
}

// Default returns the default configuration, used as the base before
// loading a file.
func Default() *Config {
	return &Config{
		Credential: CredentialConfig{TTL: "30m"},
		Broker: BrokerConfig{
			Network:    "tcp",
			Address:    "127.0.0.1:4222",
			QueueDepth: 256,
		},
		Probe: ProbeConfig{Mode: "probe-remote"},
	}
}

// Load loads configuration from the file named by SCOPEGUARD_CONFIG.
// There is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your scopeguard.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path over the defaults and
// expands variables. It does not validate; call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults and expands
// variables.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing YAML: %w", err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${identity} in patterns and topics and
// ${HOME}-style variables in paths.
func (c *Config) expandVariables() {
	patternVars := map[string]string{"identity": c.Credential.Identity}
	expandList := func(list []string) {
		for i := range list {
			list[i] = expandVars(list[i], patternVars)
		}
	}
	for _, rules := range []*permission.Rules{&c.Credential.Permissions.Publish, &c.Credential.Permissions.Subscribe} {
		expandList(rules.Allow)
		expandList(rules.Deny)
	}
	c.Credential.Name = expandVars(c.Credential.Name, patternVars)
	for i := range c.Probe.Attempts {
		c.Probe.Attempts[i].Topic = expandVars(c.Probe.Attempts[i].Topic, patternVars)
	}

	pathVars := map[string]string{"HOME": os.Getenv("HOME")}
	c.Issuer.SeedFile = expandVars(c.Issuer.SeedFile, pathVars)
	c.Issuer.AgeIdentityFile = expandVars(c.Issuer.AgeIdentityFile, pathVars)
	if c.Broker.Network == "unix" {
		c.Broker.Address = expandVars(c.Broker.Address, pathVars)
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// TTLDuration returns the parsed TTL. Call after Validate.
func (c CredentialConfig) TTLDuration() time.Duration {
	ttl, _ := time.ParseDuration(c.TTL)
	return ttl
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Issuer.PublicID != "" && !nkey.ValidPublicID(c.Issuer.PublicID, nkey.KindIssuer) {
		errs = append(errs, fmt.Errorf("issuer.public_id %q is not an issuer public ID", c.Issuer.PublicID))
	}
	if c.Issuer.AgeIdentityFile != "" && c.Issuer.SeedFile == "" {
		errs = append(errs, errors.New("issuer.age_identity_file is set without issuer.seed_file"))
	}

	if c.Credential.Identity == "" {
		errs = append(errs, errors.New("credential.identity is required"))
	}
	if ttl, err := time.ParseDuration(c.Credential.TTL); err != nil {
		errs = append(errs, fmt.Errorf("credential.ttl: %w", err))
	} else if ttl < time.Second {
		errs = append(errs, fmt.Errorf("credential.ttl must be at least 1s, got %s", c.Credential.TTL))
	}
	if err := c.Credential.Permissions.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("credential.permissions: %w", err))
	}

	if c.Broker.Network != "tcp" && c.Broker.Network != "unix" {
		errs = append(errs, fmt.Errorf("broker.network must be tcp or unix, got %q", c.Broker.Network))
	}
	if c.Broker.Address == "" {
		errs = append(errs, errors.New("broker.address is required"))
	}
	if c.Broker.QueueDepth < 0 {
		errs = append(errs, fmt.Errorf("broker.queue_depth must not be negative, got %d", c.Broker.QueueDepth))
	}

	if _, err := probe.ParseMode(c.Probe.Mode); err != nil {
		errs = append(errs, fmt.Errorf("probe.mode: %w", err))
	}
	for i, attempt := range c.Probe.Attempts {
		if _, err := attempt.expectation(); err != nil {
			errs = append(errs, fmt.Errorf("probe.attempts[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}

// Expectations returns the configured probe steps, or the default
// scenario for the credential identity when none are configured.
func (c *Config) Expectations() ([]probe.Expectation, error) {
	if len(c.Probe.Attempts) == 0 {
		return probe.DefaultScenario(c.Credential.Identity), nil
	}
	expectations := make([]probe.Expectation, 0, len(c.Probe.Attempts))
	for i, attempt := range c.Probe.Attempts {
		expectation, err := attempt.expectation()
		if err != nil {
			return nil, fmt.Errorf("probe.attempts[%d]: %w", i, err)
		}
		expectations = append(expectations, expectation)
	}
	return expectations, nil
}

func (a AttemptConfig) expectation() (probe.Expectation, error) {
	var errs []error
	operation, err := permission.ParseOperation(a.Operation)
	if err != nil {
		errs = append(errs, err)
	}
	if a.Topic == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	var timeout time.Duration
	if a.Timeout != "" {
		if timeout, err = time.ParseDuration(a.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("timeout: %w", err))
		}
	}
	if a.MaxMessages < 0 {
		errs = append(errs, fmt.Errorf("max_messages must not be negative, got %d", a.MaxMessages))
	}
	expect := probe.ExpectAllowed
	if a.Expect != "" {
		if expect, err = probe.ParseExpect(a.Expect); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return probe.Expectation{}, errors.Join(errs...)
	}

	expectation := probe.Expectation{
		Attempt: probe.Attempt{
			Operation:   operation,
			Topic:       a.Topic,
			Timeout:     timeout,
			MaxMessages: a.MaxMessages,
		},
		Expect: expect,
	}
	if a.Payload != "" {
		expectation.Payload = []byte(a.Payload)
	}
	return expectation, nil
}
