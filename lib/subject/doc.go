// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package subject parses and matches hierarchical pub/sub topics.
//
// Topics are "."-separated segments ("users.john-doe.notifications").
// Patterns use two whole-segment wildcards:
//
//	*   matches exactly one non-empty segment ("users.*" matches
//	    "users.a" but not "users.a.b")
//	>   matches one or more trailing segments and may only appear
//	    last ("users.>" matches "users.a" and "users.a.b", not "users")
//
// A wildcard character inside a longer segment is literal: "foo*"
// matches only the topic segment "foo*". Matching is case-sensitive.
//
// Every function here is total. A malformed pattern or topic is never
// an error at match time, it simply matches nothing, so a malformed
// rule can never grant access. [Parse] reports why a pattern is
// malformed for callers (credential issuance) that need to reject it.
//
// Besides topic matching, [Covers] and [Overlaps] relate two patterns
// to each other. The permission enforcer uses them to decide whether a
// wildcard subscription stays inside an allowed subtree and whether it
// touches a denied one.
package subject
