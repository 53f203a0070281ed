// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package cron

import (
	"testing"
	"time"
)

func mustParse(t *testing.T, expression string) Schedule {
	t.Helper()
	schedule, err := Parse(expression)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expression, err)
	}
	return schedule
}

func TestNext(t *testing.T) {
	base := time.Date(2026, 3, 4, 10, 30, 45, 0, time.UTC) // Wednesday

	cases := []struct {
		name       string
		expression string
		want       time.Time
	}{
		{
			name:       "every minute",
			expression: "* * * * *",
			want:       time.Date(2026, 3, 4, 10, 31, 0, 0, time.UTC),
		},
		{
			name:       "every 15 minutes",
			expression: "*/15 * * * *",
			want:       time.Date(2026, 3, 4, 10, 45, 0, 0, time.UTC),
		},
		{
			name:       "daily at 03:00",
			expression: "0 3 * * *",
			want:       time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC),
		},
		{
			name:       "weekly on sunday",
			expression: "0 0 * * 0",
			want:       time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "first of month",
			expression: "30 6 1 * *",
			want:       time.Date(2026, 4, 1, 6, 30, 0, 0, time.UTC),
		},
		{
			name:       "minute list",
			expression: "10,50 * * * *",
			want:       time.Date(2026, 3, 4, 10, 50, 0, 0, time.UTC),
		},
		{
			name:       "hour range",
			expression: "0 9-17 * * *",
			want:       time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC),
		},
		{
			name:       "every interval",
			expression: "@every 5m",
			want:       base.Add(5 * time.Minute),
		},
		{
			name:       "every interval with seconds",
			expression: "@every 90s",
			want:       base.Add(90 * time.Second),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			schedule := mustParse(t, tc.expression)
			got, err := schedule.Next(base)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("Next = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestNextIsStrictlyAfter(t *testing.T) {
	schedule := mustParse(t, "0 3 * * *")
	exactly := time.Date(2026, 3, 4, 3, 0, 0, 0, time.UTC)
	next, err := schedule.Next(exactly)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next from an exact match = %s, want %s", next, want)
	}
}

func TestNextImpossibleSchedule(t *testing.T) {
	schedule := mustParse(t, "0 0 31 2 *")
	if _, err := schedule.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("expected error for February 31st")
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name       string
		expression string
	}{
		{name: "too few fields", expression: "* * * *"},
		{name: "too many fields", expression: "* * * * * *"},
		{name: "minute out of range", expression: "60 * * * *"},
		{name: "hour out of range", expression: "0 24 * * *"},
		{name: "inverted range", expression: "30-10 * * * *"},
		{name: "zero step", expression: "*/0 * * * *"},
		{name: "garbage value", expression: "x * * * *"},
		{name: "empty every", expression: "@every "},
		{name: "negative every", expression: "@every -5m"},
		{name: "zero every", expression: "@every 0s"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse(tc.expression); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tc.expression)
			}
		})
	}
}
