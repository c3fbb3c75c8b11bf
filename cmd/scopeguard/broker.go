// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/scopeguard/cmd/scopeguard/cli"
	"github.com/bureau-foundation/scopeguard/lib/credential"
	"github.com/bureau-foundation/scopeguard/transport"
)

func (a *app) brokerCommand() *cli.Command {
	var (
		configPath string
		issuer     string
		network    string
		address    string
		queueDepth int
		revoke     []string
		logLevel   string
	)
	return &cli.Command{
		Name:    "broker",
		Summary: "Run a pub/sub broker that enforces credential permissions",
		Description: `Listen on the configured network and address and admit sessions
that present a credential from the trusted issuer. Every publish and
subscribe is checked against the session's permission set. Runs until
interrupted.`,
		Usage: "scopeguard broker [--config FILE] [--issuer ID] [--address ADDR]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("broker", pflag.ContinueOnError)
			flagSet.StringVarP(&configPath, "config", "c", "", "config file (default $SCOPEGUARD_CONFIG)")
			flagSet.StringVar(&issuer, "issuer", "", "trusted issuer public ID (default issuer.public_id)")
			flagSet.StringVar(&network, "network", "", "listen network, tcp or unix (default broker.network)")
			flagSet.StringVar(&address, "address", "", "listen address (default broker.address)")
			flagSet.IntVar(&queueDepth, "queue-depth", 0, "per-subscription buffer (default broker.queue_depth)")
			flagSet.StringSliceVar(&revoke, "revoke", nil, "credential file to reject at connect (repeatable)")
			a.logLevelFlag(flagSet, &logLevel)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("broker takes no arguments, got %q", args)
			}
			if err := a.applyLogLevel(logLevel); err != nil {
				return err
			}
			cfg, err := loadConfig(configPath, true)
			if err != nil {
				return err
			}
			if issuer != "" {
				cfg.Issuer.PublicID = issuer
			}
			if network != "" {
				cfg.Broker.Network = network
			}
			if address != "" {
				cfg.Broker.Address = address
			}
			if queueDepth != 0 {
				cfg.Broker.QueueDepth = queueDepth
			}
			if cfg.Issuer.PublicID == "" {
				return fmt.Errorf("a trusted issuer public ID is required (--issuer or issuer.public_id)")
			}

			revocations := credential.NewRevocationList()
			for _, path := range revoke {
				if err := a.revokeFile(revocations, path); err != nil {
					return err
				}
			}

			logger := a.logger("broker")
			broker, err := transport.NewBroker(transport.BrokerConfig{
				IssuerPublicID: cfg.Issuer.PublicID,
				Revocations:    revocations,
				Clock:          a.clock,
				Logger:         logger,
				QueueDepth:     cfg.Broker.QueueDepth,
			})
			if err != nil {
				return err
			}

			if cfg.Broker.Network == "unix" {
				if err := os.Remove(cfg.Broker.Address); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("removing stale socket: %w", err)
				}
			}
			listener, err := net.Listen(cfg.Broker.Network, cfg.Broker.Address)
			if err != nil {
				return fmt.Errorf("listening on %s %s: %w", cfg.Broker.Network, cfg.Broker.Address, err)
			}
			logger.Info("broker starting",
				"network", cfg.Broker.Network,
				"issuer", cfg.Issuer.PublicID,
				"revoked", revocations.Len(),
			)

			ctx, cancel := a.rootContext()
			defer cancel()
			err = transport.NewStreamServer(broker, logger).Serve(ctx, listener)
			logger.Info("broker stopped", "open_sessions", broker.SessionCount())
			return err
		},
	}
}

// revokeFile adds the credential stored at path to revocations.
func (a *app) revokeFile(revocations *credential.RevocationList, path string) error {
	data, err := a.readInput(path)
	if err != nil {
		return err
	}
	token, err := readToken(data)
	if err != nil {
		return fmt.Errorf("revoking %s: %w", path, err)
	}
	decoded, err := credential.Decode(token)
	if err != nil {
		return fmt.Errorf("revoking %s: %w", path, err)
	}
	revocations.RevokeCredential(decoded)
	return nil
}
