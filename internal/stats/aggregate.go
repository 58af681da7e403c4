// Package stats turns the event log into per-day counts of distinct
// subjects and renders them as a chart or a table.
//
// Every run re-scans the whole log; nothing is persisted between runs.
package stats

import (
	"sort"

	"github.com/youruser/avatarframe/internal/eventlog"
)

// DayCount is the number of distinct subjects seen on one date.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Aggregate is the result of one aggregation run. Days are in the order
// each date was first seen in the log, not calendar order.
type Aggregate struct {
	Total   int        `json:"total"`
	Days    []DayCount `json:"days"`
	Skipped int        `json:"skipped"`
}

// Compute counts distinct subjects per date and overall. Total is the size
// of the union of all subjects, so it does not depend on event order.
func Compute(events []eventlog.Event) Aggregate {
	all := make(map[string]struct{})
	byDate := make(map[string]map[string]struct{})
	var order []string

	for _, ev := range events {
		date := ev.Date()
		set, ok := byDate[date]
		if !ok {
			set = make(map[string]struct{})
			byDate[date] = set
			order = append(order, date)
		}
		set[ev.Subject] = struct{}{}
		all[ev.Subject] = struct{}{}
	}

	agg := Aggregate{Total: len(all), Days: make([]DayCount, 0, len(order))}
	for _, date := range order {
		agg.Days = append(agg.Days, DayCount{Date: date, Count: len(byDate[date])})
	}
	return agg
}

// Run parses the log at path in one full pass and aggregates it.
func Run(path string) (Aggregate, error) {
	res, err := eventlog.ParseFile(path)
	if err != nil {
		return Aggregate{}, err
	}
	agg := Compute(res.Events)
	agg.Skipped = res.Skipped
	return agg, nil
}

// Sorted returns a copy with Days in calendar order. ISO dates sort
// lexically.
func (a Aggregate) Sorted() Aggregate {
	days := append([]DayCount(nil), a.Days...)
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	a.Days = days
	return a
}
