package activity

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"accessdash/internal/store"
)

var now = time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC)

func at(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

func TestAggregate(t *testing.T) {
	doors := []store.Door{{ID: "d1", Name: "Lobby"}, {ID: "d2", Name: "Server Room"}, {ID: "d3", Name: "Roof"}}
	logs := []store.AccessLog{
		{CardID: "a", DoorID: "d1", Granted: true, OccurredAt: at(3, 9)},
		{CardID: "b", DoorID: "d1", Granted: true, OccurredAt: at(3, 10)},
		{CardID: "c", DoorID: "d2", Granted: false, Reason: "inactive card", OccurredAt: at(2, 22)},
		{CardID: "a", DoorID: "d2", Granted: true, OccurredAt: at(1, 8)},
		{CardID: "x", DoorID: "d9", Granted: false, OccurredAt: at(3, 11)},
		{CardID: "old", DoorID: "d1", Granted: true, OccurredAt: at(1, 0).AddDate(0, 0, -1)},
		{CardID: "future", DoorID: "d1", Granted: true, OccurredAt: at(4, 1)},
	}

	got := Aggregate(logs, doors, now, 3, time.UTC)

	want := Summary{
		From: at(1, 0),
		To:   at(4, 0),
		Days: []Day{
			{Date: "2026-03-01", Counts: Counts{Granted: 1, Total: 1}},
			{Date: "2026-03-02", Counts: Counts{Denied: 1, Total: 1}},
			{Date: "2026-03-03", Counts: Counts{Granted: 2, Denied: 1, Total: 3}},
		},
		Doors: []Door{
			{DoorID: "d1", Name: "Lobby", Counts: Counts{Granted: 2, Total: 2}},
			{DoorID: "d2", Name: "Server Room", Counts: Counts{Granted: 1, Denied: 1, Total: 2}},
			{DoorID: "d9", Name: "d9", Counts: Counts{Denied: 1, Total: 1}},
			{DoorID: "d3", Name: "Roof"},
		},
		Totals:        Counts{Granted: 3, Denied: 2, Total: 5},
		UniqueCards:   4,
		DeniedReasons: map[string]int{"inactive card": 1, "unspecified": 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateEmptyIsZeroFilled(t *testing.T) {
	got := Aggregate(nil, nil, now, 0, nil)
	assert.Len(t, got.Days, DefaultDays)
	assert.Equal(t, "2026-02-25", got.Days[0].Date)
	assert.Equal(t, "2026-03-03", got.Days[DefaultDays-1].Date)
	assert.Empty(t, got.Doors)
	assert.Equal(t, Counts{}, got.Totals)
}

func TestAggregateUsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	logs := []store.AccessLog{{DoorID: "d1", Granted: true, OccurredAt: time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)}}

	got := Aggregate(logs, nil, now, 2, tokyo)
	assert.Equal(t, "2026-03-03", got.Days[0].Date)
	assert.Equal(t, 1, got.Days[0].Total)
}

func TestClampDays(t *testing.T) {
	assert.Equal(t, DefaultDays, ClampDays(-3))
	assert.Equal(t, 1, ClampDays(1))
	assert.Equal(t, MaxDays, ClampDays(1000))
}
