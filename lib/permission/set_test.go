// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"encoding/json"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

// JSON is valid YAML, so one document must bind identically through
// both decoders.
func TestSetKeysAgreeAcrossFormats(t *testing.T) {
	const document = `{"pub": {"allow": ["users.a.>"]}, "sub": {"allow": ["users.a.>"], "deny": ["users.a.secrets"]}}`
	want := Set{
		Publish:   Rules{Allow: []string{"users.a.>"}},
		Subscribe: Rules{Allow: []string{"users.a.>"}, Deny: []string{"users.a.secrets"}},
	}

	var fromJSON, fromYAML Set
	if err := json.Unmarshal([]byte(document), &fromJSON); err != nil {
		t.Fatalf("json: %v", err)
	}
	if err := yaml.Unmarshal([]byte(document), &fromYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !reflect.DeepEqual(fromJSON, want) {
		t.Errorf("json = %+v, want %+v", fromJSON, want)
	}
	if !reflect.DeepEqual(fromYAML, want) {
		t.Errorf("yaml = %+v, want %+v", fromYAML, want)
	}

	encoded, err := yaml.Marshal(want)
	if err != nil {
		t.Fatal(err)
	}
	var keys map[string]any
	if err := yaml.Unmarshal(encoded, &keys); err != nil {
		t.Fatal(err)
	}
	if _, ok := keys["pub"]; !ok {
		t.Errorf("yaml output has no pub key:\n%s", encoded)
	}
}
