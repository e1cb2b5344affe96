package models

import "time"

// RateTable is one set of USD-based currency rates from a single source.
type RateTable struct {
	Base      string             `json:"base"`
	Rates     map[string]float64 `json:"rates"`
	FetchedAt time.Time          `json:"fetchedAt"`
}

// AgeDays reports how old the table is, rounded down to whole days.
func (t RateTable) AgeDays(now time.Time) int {
	if t.FetchedAt.IsZero() || now.Before(t.FetchedAt) {
		return 0
	}
	return int(now.Sub(t.FetchedAt).Hours() / 24)
}
