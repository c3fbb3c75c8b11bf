// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission decides whether a publish or subscribe request
// falls inside a verified permission set.
//
// A [Set] holds independent allow/deny pattern lists for publishing
// and subscribing. Evaluation for one request:
//
//  1. Select the rules for the operation.
//  2. Any deny pattern that matches → DENY (first matching deny is
//     recorded as the matched rule).
//  3. Else any allow pattern that matches → ALLOW.
//  4. Else → DENY with no matched rule (implicit deny).
//
// Deny always wins: the outcome does not depend on list order, only
// the recorded rule does.
//
// Subscriptions may themselves be patterns. An allow rule matches a
// subscription when it covers every topic the subscription could
// receive; a deny rule matches when it shares even one topic with it.
// Subscribing to "users.>" under allow "users.john-doe.>" is therefore
// denied, and subscribing to "x.>" under deny "x.secret.>" is denied
// even though allow "x.>" covers it. For literal topics both tests
// reduce to ordinary matching.
//
// Authorization never fails. A malformed request topic is a denial
// ([ReasonInvalidTopic]); a malformed deny rule denies everything
// ([ReasonMalformedRule]); a malformed allow rule never matches.
// [Compile] is the strict path: it rejects a set with any malformed
// pattern and returns a [Policy] with patterns pre-parsed, which the
// broker builds once per session.
package permission
