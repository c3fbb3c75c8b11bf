// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	Name  string   `cbor:"1,keyasint"`
	Count int64    `cbor:"2,keyasint"`
	Tags  []string `cbor:"3,keyasint,omitempty"`
}

func TestMarshalDeterministic(t *testing.T) {
	value := sample{Name: "users.john-doe.>", Count: 42, Tags: []string{"a", "b"}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 10 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding is not stable: %x vs %x", first, again)
		}
	}
}

func TestMapKeysSorted(t *testing.T) {
	forward, err := Marshal(map[string]int{"a": 1, "b": 2, "c": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	reverse, err := Marshal(map[string]int{"c": 3, "b": 2, "a": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(forward, reverse) {
		t.Errorf("map encoding depends on insertion order")
	}
}

func TestUnmarshalRejectsDuplicateKeys(t *testing.T) {
	// {1: "a", 1: "b"}
	data := []byte{0xa2, 0x01, 0x61, 'a', 0x01, 0x61, 'b'}
	var decoded sample
	if err := Unmarshal(data, &decoded); err == nil {
		t.Fatal("expected duplicate map key to be rejected")
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	data, err := Marshal(sample{Name: "x", Count: 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	data = append(data, 0x00)

	var decoded sample
	if err := Unmarshal(data, &decoded); err == nil {
		t.Fatal("expected trailing bytes to be rejected")
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for index := range 3 {
		if err := encoder.Encode(sample{Name: "frame", Count: int64(index)}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for index := range 3 {
		var decoded sample
		if err := decoder.Decode(&decoded); err != nil {
			t.Fatalf("Decode frame %d: %v", index, err)
		}
		if decoded.Count != int64(index) {
			t.Errorf("frame %d: Count = %d", index, decoded.Count)
		}
	}
}
