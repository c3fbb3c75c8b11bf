// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
	"github.com/bureau-foundation/scopeguard/lib/clock"
	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/lib/testutil"
)

type harness struct {
	t      *testing.T
	dir    string
	stdout bytes.Buffer
	stderr bytes.Buffer
	app    *app
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("SCOPEGUARD_CONFIG", "")
	h := &harness{t: t, dir: t.TempDir()}
	h.app = &app{
		stdin:       strings.NewReader(""),
		stdout:      &h.stdout,
		stderr:      &h.stderr,
		clock:       clock.Real(),
		logLevel:    slog.LevelInfo,
		newLogger:   discardLogger,
		rootContext: cancelContext,
	}
	return h
}

func discardLogger(slog.Level) *slog.Logger { return slog.New(slog.DiscardHandler) }

func cancelContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(context.Background())
}

// run executes the command line and returns stdout.
func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	err := h.app.root().Execute(args)
	return h.stdout.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	output, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("scopeguard %s: %v\nstderr: %s", strings.Join(args, " "), err, h.stderr.String())
	}
	return output
}

func (h *harness) path(name string) string {
	return filepath.Join(h.dir, name)
}

func (h *harness) write(name, content string) string {
	h.t.Helper()
	path := h.path(name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		h.t.Fatal(err)
	}
	return path
}

// issuer generates a plain issuer seed and returns its path and
// public ID.
func (h *harness) issuer() (string, string) {
	h.t.Helper()
	seedPath := h.path("issuer.seed")
	publicID := strings.TrimSpace(h.mustRun("keygen", "--kind", "issuer", "--out", seedPath))
	return seedPath, publicID
}

func TestKeygen(t *testing.T) {
	h := newHarness(t)
	seedPath, publicID := h.issuer()

	if !strings.HasPrefix(publicID, "A") {
		t.Errorf("issuer public ID %q does not start with A", publicID)
	}
	seed, err := os.ReadFile(seedPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(seed, []byte("SA")) {
		t.Errorf("issuer seed does not start with SA")
	}
	info, err := os.Stat(seedPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("seed file mode = %v, want 0600", info.Mode().Perm())
	}

	output := h.mustRun("keygen", "--kind", "subject", "--json", "--out", h.path("subject.seed"))
	var result keygenResult
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("parsing --json output %q: %v", output, err)
	}
	if result.Kind != "subject" || !strings.HasPrefix(result.PublicID, "U") {
		t.Errorf("result = %+v, want a subject key", result)
	}

	if _, err := h.run("keygen", "--kind", "operator"); err == nil {
		t.Error("keygen --kind operator succeeded")
	}
	if _, err := h.run("keygen", "--seal-to", "not-an-age-key"); err == nil {
		t.Error("keygen with an invalid recipient succeeded")
	}
}

func TestIssueVerifySealedSeed(t *testing.T) {
	h := newHarness(t)

	identityPath := h.path("issuer.age")
	recipient := strings.TrimSpace(h.mustRun("keygen", "--kind", "age", "--out", identityPath))
	if !strings.HasPrefix(recipient, "age1") {
		t.Fatalf("age recipient = %q", recipient)
	}
	seedPath := h.path("issuer.seed.age")
	publicID := strings.TrimSpace(h.mustRun("keygen", "--out", seedPath, "--seal-to", recipient))

	sealedSeed, err := os.ReadFile(seedPath)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.HasPrefix(sealedSeed, []byte("SA")) || !bytes.Contains(sealedSeed, []byte("BEGIN AGE ENCRYPTED FILE")) {
		t.Fatalf("sealed seed is not age armored:\n%s", sealedSeed)
	}

	// Without the age identity the sealed seed cannot be read.
	if _, err := h.run("issue", "--issuer-seed", seedPath, "--identity", "john-doe", "--pub-allow", "users.john-doe.>"); err == nil {
		t.Fatal("issue with a sealed seed and no identity succeeded")
	}

	envelopePath := h.path("john-doe.creds")
	h.mustRun("issue",
		"--issuer-seed", seedPath,
		"--age-identity", identityPath,
		"--identity", "john-doe",
		"--pub-allow", "users.john-doe.>",
		"--sub-allow", "users.john-doe.>",
		"--sub-deny", "users.*.secrets",
		"--out", envelopePath,
	)

	output := h.mustRun("verify", "--issuer", publicID, "--json", envelopePath)
	var result verifyResult
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("parsing verify output %q: %v", output, err)
	}
	if result.Subject != "john-doe" || result.Issuer != publicID {
		t.Errorf("verified %+v", result)
	}
	if got := result.ExpiresAt.Sub(result.IssuedAt); got != 30*time.Minute {
		t.Errorf("lifetime = %v, want default 30m", got)
	}
	if len(result.Permissions.Subscribe.Deny) != 1 {
		t.Errorf("permissions = %+v", result.Permissions)
	}

	_, otherIssuer := newHarness(t).issuer()
	_, err = h.run("verify", "--issuer", otherIssuer, envelopePath)
	testutil.RequireErrorIs(t, err, credential.ErrSignatureInvalid, "verify against another issuer")

	_, err = h.run("verify", "--issuer", publicID, "--revoked", result.ID, envelopePath)
	testutil.RequireErrorIs(t, err, credential.ErrRevoked, "verify a revoked credential")
}

func TestIssueFromConfigThenExpire(t *testing.T) {
	h := newHarness(t)
	fake := clock.Fake(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	h.app.clock = fake
	seedPath, publicID := h.issuer()

	configPath := h.write("scopeguard.yaml", fmt.Sprintf(`
issuer:
  public_id: %s
  seed_file: %s
credential:
  identity: john-doe
  name: user-${identity}
  ttl: 2m
  permissions:
    pub:
      allow: ["users.${identity}.>"]
    sub:
      allow: ["users.${identity}.>"]
`, publicID, seedPath))
	t.Setenv("SCOPEGUARD_CONFIG", configPath)

	envelope := h.mustRun("issue")
	if !strings.Contains(envelope, "-----BEGIN USER CREDENTIAL-----") ||
		!strings.Contains(envelope, "-----BEGIN USER SEED-----") {
		t.Fatalf("issue output is not an envelope:\n%s", envelope)
	}
	envelopePath := h.write("john-doe.creds", envelope)

	output := h.mustRun("verify", envelopePath)
	if !strings.Contains(output, "name:        user-john-doe") {
		t.Errorf("verify output missing expanded name:\n%s", output)
	}
	if !strings.Contains(output, "publish allow: users.john-doe.>") {
		t.Errorf("verify output missing expanded pattern:\n%s", output)
	}

	output = h.mustRun("verify", "--cbor", envelopePath)
	if !strings.Contains(output, `2: "user-john-doe"`) {
		t.Errorf("verify --cbor output missing the name claim:\n%s", output)
	}

	fake.Advance(2 * time.Minute)
	_, err := h.run("verify", envelopePath)
	testutil.RequireErrorIs(t, err, credential.ErrExpired, "verify after the TTL")
}

func TestIssueRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	seedPath, _ := h.issuer()

	_, err := h.run("issue", "--issuer-seed", seedPath, "--identity", "john-doe", "--pub-allow", "users..>")
	if err == nil || !strings.Contains(err.Error(), "credential.permissions") {
		t.Errorf("malformed pattern: err = %v", err)
	}

	_, err = h.run("issue", "--issuer-seed", seedPath, "--pub-allow", "users.a")
	if err == nil || !strings.Contains(err.Error(), "credential.identity is required") {
		t.Errorf("missing identity: err = %v", err)
	}

	subjectSeed := h.path("subject.seed")
	h.mustRun("keygen", "--kind", "subject", "--out", subjectSeed)
	_, err = h.run("issue", "--issuer-seed", subjectSeed, "--identity", "john-doe")
	if err == nil || !strings.Contains(err.Error(), "want issuer") {
		t.Errorf("subject seed as issuer: err = %v", err)
	}
}

func TestAuthorize(t *testing.T) {
	h := newHarness(t)
	permissionsPath := h.write("permissions.jsonc", `{
  // john-doe may use their own subtree
  "pub": {"allow": ["users.john-doe.>"]},
  "sub": {
    "allow": ["users.john-doe.>"],
    "deny": ["users.*.secrets"], /* nobody reads secrets */
  },
}`)

	output := h.mustRun("authorize", "--permissions", permissionsPath, "publish", "users.john-doe.events")
	if !strings.Contains(output, "allowed") {
		t.Errorf("publish own topic: %q", output)
	}

	output, err := h.run("authorize", "--permissions", permissionsPath, "subscribe", "users.*.secrets")
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Fatalf("wildcard subscribe: err = %v, want exit code 1", err)
	}
	if !strings.Contains(output, "denied") || !strings.Contains(output, "users.*.secrets") {
		t.Errorf("deny output = %q", output)
	}

	output, err = h.run("authorize", "--json", "--pub-allow", "orders.*", "publish", "orders.eu.created")
	if !errors.As(err, &exit) {
		t.Fatalf("two-level topic under single-level wildcard: err = %v, want exit error", err)
	}
	var result authorizeResult
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("parsing %q: %v", output, err)
	}
	if result.Allowed || result.MatchedRule != "" {
		t.Errorf("result = %+v, want implicit deny", result)
	}

	if _, err := h.run("authorize", "--pub-allow", "a", "delete", "a"); err == nil {
		t.Error("unknown operation succeeded")
	}
	if _, err := h.run("authorize", "--permissions", h.write("bad.jsonc", `{"publish": {}}`), "publish", "a"); err == nil {
		t.Error("permissions file with unknown key succeeded")
	}
}

func TestAuthorizeFromCredential(t *testing.T) {
	h := newHarness(t)
	seedPath, publicID := h.issuer()
	envelopePath := h.path("john-doe.creds")
	h.mustRun("issue", "--issuer-seed", seedPath, "--identity", "john-doe",
		"--sub-allow", "users.john-doe.>", "--out", envelopePath)

	h.app.stdin = strings.NewReader(mustReadFile(t, envelopePath))
	output := h.mustRun("authorize", "--credential", "-", "--issuer", publicID, "subscribe", "users.john-doe.inbox")
	if !strings.Contains(output, "allowed") {
		t.Errorf("output = %q", output)
	}
}

func TestProbeInProcess(t *testing.T) {
	h := newHarness(t)
	output := h.mustRun("probe", "--in-process", "--identity", "john-doe", "--json")

	var report probeReport
	if err := json.Unmarshal([]byte(output), &report); err != nil {
		t.Fatalf("parsing %q: %v", output, err)
	}
	if !report.AllMet || len(report.Steps) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if report.Steps[0].Observed != "denied" || report.Steps[1].Observed != "timeout" {
		t.Errorf("steps = %+v", report.Steps)
	}
}

func TestProbeUnmetExpectation(t *testing.T) {
	h := newHarness(t)
	configPath := h.write("scopeguard.yaml", `
credential:
  identity: john-doe
probe:
  attempts:
    - operation: publish
      topic: users.jane-doe.inbox
      expect: allowed
`)
	output, err := h.run("probe", "--in-process", "--config", configPath)
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Fatalf("err = %v, want exit code 1", err)
	}
	if !strings.Contains(output, "FAIL") {
		t.Errorf("output = %q", output)
	}
}

func TestBrokerAndRemoteProbe(t *testing.T) {
	h := newHarness(t)
	seedPath, publicID := h.issuer()
	socket := h.path("broker.sock")
	configPath := h.write("scopeguard.yaml", fmt.Sprintf(`
issuer:
  public_id: %s
  seed_file: %s
credential:
  identity: john-doe
broker:
  network: unix
  address: %s
probe:
  attempts:
    - operation: subscribe
      topic: "users.*.secrets"
      expect: denied
    - operation: publish
      topic: users.john-doe.events
      payload: hello
`, publicID, seedPath, socket))

	ctx, cancel := context.WithCancel(context.Background())
	brokerApp := *h.app
	brokerApp.rootContext = func() (context.Context, context.CancelFunc) { return ctx, func() {} }
	brokerDone := make(chan error, 1)
	go func() {
		brokerDone <- brokerApp.root().Execute([]string{"broker", "--config", configPath})
	}()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, brokerDone, 5*time.Second, "broker shutdown"); err != nil {
			t.Errorf("broker: %v", err)
		}
	})
	waitForSocket(t, socket)

	output := h.mustRun("probe", "--config", configPath, "--json")
	var report probeReport
	if err := json.Unmarshal([]byte(output), &report); err != nil {
		t.Fatalf("parsing %q: %v", output, err)
	}
	if !report.AllMet {
		t.Errorf("report = %+v", report)
	}
	if report.InProcess || !report.Steps[1].Forwarded {
		t.Errorf("probe did not reach the remote broker: %+v", report)
	}
}

func TestWriteSecretZeroesData(t *testing.T) {
	h := newHarness(t)
	envelope := credential.FormatEnvelope("token", []byte("SUSEED"))
	path := h.path("john-doe.creds")
	if err := h.app.writeSecret(path, envelope); err != nil {
		t.Fatalf("writeSecret: %v", err)
	}
	if !strings.Contains(mustReadFile(t, path), "SUSEED") {
		t.Error("written envelope lost the seed")
	}
	if !bytes.Equal(envelope, make([]byte, len(envelope))) {
		t.Error("envelope bytes not zeroed after write")
	}

	data := []byte("SASEED\n")
	if err := h.app.writeSecret(filepath.Join(h.dir, "missing", "seed"), data); err == nil {
		t.Fatal("writeSecret into a missing directory succeeded")
	}
	if !bytes.Equal(data, make([]byte, len(data))) {
		t.Error("data not zeroed after a failed write")
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("verfy")
	if err == nil || !strings.Contains(err.Error(), `did you mean "verify"?`) {
		t.Errorf("err = %v", err)
	}
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	output := h.mustRun("version", "--short")
	if strings.TrimSpace(output) == "" {
		t.Error("version --short printed nothing")
	}
	output = h.mustRun("version", "--json")
	if !strings.Contains(output, `"go_version"`) {
		t.Errorf("version --json = %q", output)
	}
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("broker socket %s never accepted a connection", path)
}

func mustReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
