// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "testing"

func TestParseGuildID(t *testing.T) {
	id, err := ParseGuildID("132196696489918464")
	if err != nil {
		t.Fatalf("ParseGuildID: %v", err)
	}
	if got := id.String(); got != "132196696489918464" {
		t.Errorf("String = %q", got)
	}
	if id.IsZero() {
		t.Error("IsZero = true for a parsed ID")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"non_numeric", "not-a-snowflake"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ParseUserID(test.raw); err == nil {
				t.Errorf("ParseUserID(%q) = nil error", test.raw)
			}
		})
	}
}

func TestZeroValue(t *testing.T) {
	var id ChannelID
	if !id.IsZero() {
		t.Error("zero ChannelID: IsZero = false")
	}
	if id.Uint64() != 0 {
		t.Error("zero ChannelID: Uint64 != 0")
	}
}

func TestTextRoundTrip(t *testing.T) {
	original := UserIDFrom(987654321)
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var decoded UserID
	if err := decoded.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip = %v, want %v", decoded, original)
	}
}
