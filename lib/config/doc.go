// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for scopeguard.
//
// Configuration is loaded from a single file specified by either the
// SCOPEGUARD_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// Variable expansion runs after loading. ${identity} in permission
// patterns and probe topics expands to credential.identity, so one
// file can describe the scope of any identity:
//
//	credential:
//	  identity: john-doe
//	  ttl: 30m
//	  permissions:
//	    pub:
//	      allow: ["users.${identity}.>"]
//	    sub:
//	      allow: ["users.${identity}.>"]
//	      deny: ["users.*.secrets"]
//
// File paths also expand ${HOME} and ${VAR:-default} patterns.
//
// The engine packages never read configuration themselves. Commands
// load a Config and pass explicit values down.
package config
