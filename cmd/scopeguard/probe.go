// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
	"github.com/bureau-foundation/scopeguard/lib/config"
	"github.com/bureau-foundation/scopeguard/lib/nkey"
	"github.com/bureau-foundation/scopeguard/lib/probe"
	"github.com/bureau-foundation/scopeguard/transport"
)

type probeStep struct {
	Operation   string `json:"operation"`
	Topic       string `json:"topic"`
	Expect      string `json:"expect"`
	Observed    string `json:"observed"`
	Met         bool   `json:"met"`
	Local       string `json:"local_decision,omitempty"`
	Forwarded   bool   `json:"forwarded"`
	MatchedRule string `json:"matched_rule,omitempty"`
	Messages    int    `json:"messages"`
}

type probeReport struct {
	Credential string      `json:"credential,omitempty"`
	Subject    string      `json:"subject"`
	Mode       string      `json:"mode"`
	InProcess  bool        `json:"in_process"`
	AllMet     bool        `json:"all_met"`
	Steps      []probeStep `json:"steps"`
}

func (a *app) probeCommand() *cli.Command {
	var (
		configPath  string
		identity    string
		mode        string
		issuerSeed  string
		ageIdentity string
		inProcess   bool
		timeout     time.Duration
		logLevel    string
		output      cli.JSONOutput
	)
	return &cli.Command{
		Name:    "probe",
		Summary: "Issue a credential and check its permissions against a broker",
		Description: `Issue a short-lived credential for the configured identity, connect
to the broker with it, and run each configured attempt, comparing the
broker's verdict with the expected one. Without configured attempts
the default scenario runs: a wildcard subscription to users.> is
denied, and a subscription to the identity's own notifications is
accepted and times out after one second without traffic.

Exits 1 when any expectation is not met.`,
		Usage: "scopeguard probe [--config FILE] [--in-process] [--mode probe-remote|enforce-local]",
		Examples: []cli.Example{
			{Description: "Probe a running broker", Command: "scopeguard probe --config scopeguard.yaml"},
			{Description: "Self-check with an ephemeral issuer and broker", Command: "scopeguard probe --in-process --identity john-doe"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("probe", pflag.ContinueOnError)
			flagSet.StringVarP(&configPath, "config", "c", "", "config file (default $SCOPEGUARD_CONFIG)")
			flagSet.StringVar(&identity, "identity", "", "subject identity (default credential.identity)")
			flagSet.StringVar(&mode, "mode", "", "probe-remote or enforce-local (default probe.mode)")
			flagSet.StringVar(&issuerSeed, "issuer-seed", "", "issuer seed file, plain or age-sealed")
			flagSet.StringVar(&ageIdentity, "age-identity", "", "age identity file for a sealed issuer seed")
			flagSet.BoolVar(&inProcess, "in-process", false, "run against an in-process broker instead of dialing one")
			flagSet.DurationVar(&timeout, "timeout", time.Minute, "overall probe deadline")
			output.AddFlag(flagSet)
			a.logLevelFlag(flagSet, &logLevel)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("probe takes no arguments, got %q", args)
			}
			if err := a.applyLogLevel(logLevel); err != nil {
				return err
			}
			cfg, err := loadConfig(configPath, inProcess)
			if err != nil {
				return err
			}
			if identity != "" {
				cfg.Credential.Identity = identity
			}
			if mode != "" {
				cfg.Probe.Mode = mode
			}
			if issuerSeed != "" {
				cfg.Issuer.SeedFile = issuerSeed
			}
			if ageIdentity != "" {
				cfg.Issuer.AgeIdentityFile = ageIdentity
			}
			if cfg.Credential.Permissions.IsEmpty() {
				cfg.Credential.Permissions = probe.DefaultPermissions(cfg.Credential.Identity)
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.runProbe(cfg, inProcess, timeout, &output)
		},
	}
}

func (a *app) runProbe(cfg *config.Config, inProcess bool, timeout time.Duration, output *cli.JSONOutput) error {
	logger := a.logger("probe").With("subject", cfg.Credential.Identity)
	probeMode, _ := probe.ParseMode(cfg.Probe.Mode)
	expectations, err := cfg.Expectations()
	if err != nil {
		return err
	}

	var issuer *nkey.KeyPair
	if inProcess && cfg.Issuer.SeedFile == "" {
		issuer, err = nkey.Default().Generate(nkey.KindIssuer)
		if err == nil {
			logger.Info("using ephemeral issuer", "issuer", issuer.PublicID())
		}
	} else {
		issuer, err = loadIssuer(cfg.Issuer.SeedFile, cfg.Issuer.AgeIdentityFile, cfg.Issuer.PublicID)
	}
	if err != nil {
		return err
	}
	defer issuer.Close()

	var link transport.Transport
	if inProcess {
		link, err = transport.NewBroker(transport.BrokerConfig{
			IssuerPublicID: issuer.PublicID(),
			Clock:          a.clock,
			Logger:         logger,
			QueueDepth:     cfg.Broker.QueueDepth,
		})
		if err != nil {
			return err
		}
	} else {
		link = &transport.StreamTransport{
			Network:    cfg.Broker.Network,
			Address:    cfg.Broker.Address,
			Clock:      a.clock,
			Logger:     logger,
			QueueDepth: cfg.Broker.QueueDepth,
		}
	}

	ctx, cancel := a.rootContext()
	defer cancel()
	if timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, timeout)
		defer stop()
	}

	report, err := probe.Run(ctx, probe.Config{
		Identity:    cfg.Credential.Identity,
		Name:        cfg.Credential.Name,
		Issuer:      issuer,
		Permissions: cfg.Credential.Permissions,
		TTL:         cfg.Credential.TTLDuration(),
		Transport:   link,
		Mode:        probeMode,
		Clock:       a.clock,
		Logger:      logger,
	}, expectations)
	if report == nil {
		return err
	}
	summary := summarize(report, cfg.Credential.Identity, probeMode, inProcess)
	if printErr := a.printProbeReport(summary, output); printErr != nil && err == nil {
		err = printErr
	}
	if last := len(report.Results) - 1; err != nil && last >= 0 && !report.Results[last].Met {
		// The run stopped on the unmet expectation itself.
		logger.Warn("probe stopped on unmet expectation", "error", err)
		err = nil
	}
	if err == nil && !summary.AllMet {
		return &cli.ExitError{Code: 1}
	}
	return err
}

func summarize(report *probe.Report, identity string, mode probe.Mode, inProcess bool) probeReport {
	summary := probeReport{
		Subject:   identity,
		Mode:      mode.String(),
		InProcess: inProcess,
		AllMet:    report.AllMet(),
		Steps:     make([]probeStep, 0, len(report.Results)),
	}
	if report.Credential != nil {
		summary.Credential = report.Credential.Claims.ID
	}
	for _, result := range report.Results {
		step := probeStep{
			Operation: result.Expectation.Operation.String(),
			Topic:     result.Expectation.Topic,
			Expect:    result.Expectation.Expect.String(),
			Observed:  result.Observed.String(),
			Met:       result.Met,
		}
		if outcome := result.Outcome; outcome != nil {
			step.Local = outcome.Local.String()
			step.Forwarded = outcome.Forwarded
			step.MatchedRule = outcome.Local.MatchedRule
			step.Messages = len(outcome.Messages)
		}
		summary.Steps = append(summary.Steps, step)
	}
	return summary
}

func (a *app) printProbeReport(summary probeReport, output *cli.JSONOutput) error {
	if done, err := output.EmitJSON(a.stdout, summary); done {
		return err
	}
	fmt.Fprintf(a.stdout, "credential %s for %s (%s)\n\n", summary.Credential, summary.Subject, summary.Mode)
	styles := cli.NewStyles(a.stdout)
	tw := tabwriter.NewWriter(a.stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tTOPIC\tEXPECT\tOBSERVED\tRESULT")
	for _, step := range summary.Steps {
		verdict := "ok"
		if !step.Met {
			verdict = "FAIL"
		}
		// The verdict is the last column so escape codes do not skew
		// the tabwriter widths.
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", step.Operation, step.Topic, step.Expect, step.Observed,
			styles.Verdict(step.Met, verdict))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !summary.AllMet {
		_, err := fmt.Fprintln(a.stdout, "\nsome expectations were not met")
		return err
	}
	return nil
}
