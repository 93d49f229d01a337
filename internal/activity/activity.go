// Package activity turns raw access logs into the per-day and per-door
// series the dashboard charts.
package activity

import (
	"sort"
	"time"

	"accessdash/internal/store"
)

const (
	DefaultDays = 7
	MaxDays     = 90
	dateLayout  = "2006-01-02"
)

type Counts struct {
	Granted int `json:"granted"`
	Denied  int `json:"denied"`
	Total   int `json:"total"`
}

func (c *Counts) add(granted bool) {
	if granted {
		c.Granted++
	} else {
		c.Denied++
	}
	c.Total++
}

type Day struct {
	Date string `json:"date"`
	Counts
}

type Door struct {
	DoorID string `json:"door_id"`
	Name   string `json:"name"`
	Counts
}

type Summary struct {
	From          time.Time      `json:"from"`
	To            time.Time      `json:"to"`
	Days          []Day          `json:"days"`
	Doors         []Door         `json:"doors"`
	Totals        Counts         `json:"totals"`
	UniqueCards   int            `json:"unique_cards"`
	DeniedReasons map[string]int `json:"denied_reasons"`
}

// ClampDays keeps a requested window between 1 and MaxDays, falling back
// to DefaultDays for anything non-positive.
func ClampDays(days int) int {
	switch {
	case days <= 0:
		return DefaultDays
	case days > MaxDays:
		return MaxDays
	default:
		return days
	}
}

// Since is midnight, in loc, of the first day of a days-long window
// ending on now's day.
func Since(now time.Time, days int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, -(ClampDays(days) - 1))
}

// Aggregate buckets logs into one entry per calendar day (zero-filled,
// oldest first) and one entry per door (busiest first). Every known door is
// listed; doors only seen in logs are named by id. Events outside the window
// are ignored.
func Aggregate(logs []store.AccessLog, doors []store.Door, now time.Time, days int, loc *time.Location) Summary {
	if loc == nil {
		loc = time.UTC
	}
	days = ClampDays(days)
	from := Since(now, days, loc)
	to := from.AddDate(0, 0, days)

	summary := Summary{
		From:          from,
		To:            to,
		Days:          make([]Day, days),
		DeniedReasons: map[string]int{},
	}
	dayIndex := make(map[string]int, days)
	for i := 0; i < days; i++ {
		date := from.AddDate(0, 0, i).Format(dateLayout)
		summary.Days[i].Date = date
		dayIndex[date] = i
	}

	byDoor := make(map[string]*Door, len(doors))
	for _, d := range doors {
		byDoor[d.ID] = &Door{DoorID: d.ID, Name: d.Name}
	}
	cards := make(map[string]struct{})

	for _, log := range logs {
		at := log.OccurredAt.In(loc)
		if at.Before(from) || !at.Before(to) {
			continue
		}
		i, ok := dayIndex[at.Format(dateLayout)]
		if !ok {
			continue
		}
		summary.Days[i].add(log.Granted)
		summary.Totals.add(log.Granted)

		door := byDoor[log.DoorID]
		if door == nil {
			door = &Door{DoorID: log.DoorID, Name: log.DoorID}
			byDoor[log.DoorID] = door
		}
		door.add(log.Granted)

		if log.CardID != "" {
			cards[log.CardID] = struct{}{}
		}
		if !log.Granted {
			reason := log.Reason
			if reason == "" {
				reason = "unspecified"
			}
			summary.DeniedReasons[reason]++
		}
	}

	summary.UniqueCards = len(cards)
	summary.Doors = make([]Door, 0, len(byDoor))
	for _, d := range byDoor {
		summary.Doors = append(summary.Doors, *d)
	}
	sort.Slice(summary.Doors, func(i, j int) bool {
		a, b := summary.Doors[i], summary.Doors[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.DoorID < b.DoorID
	})
	return summary
}
