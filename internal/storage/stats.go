package storage

import (
	"sort"
	"time"
)

// DayCount is one calendar day of a Stats window.
type DayCount struct {
	Day    string // YYYY-MM-DD in the stats location
	Sent   int
	Errors int
}

// AccountCount is the number of successful sends by one account.
type AccountCount struct {
	Account string
	Sent    int
}

type Stats struct {
	Days        int
	Sent        int
	Errors      int
	PerDay      []DayCount     // ascending by day
	TopAccounts []AccountCount // at most 5, most sends first
}

const topAccounts = 5

// Aggregate summarizes records for the last `days` calendar days (today
// included) in loc. A nil loc means UTC.
func Aggregate(records []Record, now time.Time, days int, loc *time.Location) Stats {
	if loc == nil {
		loc = time.UTC
	}
	if days < 1 {
		days = 1
	}
	now = now.In(loc)
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, -(days - 1))

	st := Stats{Days: days}
	perDay := map[string]*DayCount{}
	perAccount := map[string]int{}
	for _, r := range records {
		at := r.At.In(loc)
		if at.Before(start) {
			continue
		}
		key := at.Format("2006-01-02")
		dc := perDay[key]
		if dc == nil {
			dc = &DayCount{Day: key}
			perDay[key] = dc
		}
		if r.OK {
			st.Sent++
			dc.Sent++
			if r.Account != "" {
				perAccount[r.Account]++
			}
		} else {
			st.Errors++
			dc.Errors++
		}
	}

	for _, dc := range perDay {
		st.PerDay = append(st.PerDay, *dc)
	}
	sort.Slice(st.PerDay, func(i, j int) bool { return st.PerDay[i].Day < st.PerDay[j].Day })

	for acc, n := range perAccount {
		st.TopAccounts = append(st.TopAccounts, AccountCount{Account: acc, Sent: n})
	}
	sort.Slice(st.TopAccounts, func(i, j int) bool {
		if st.TopAccounts[i].Sent != st.TopAccounts[j].Sent {
			return st.TopAccounts[i].Sent > st.TopAccounts[j].Sent
		}
		return st.TopAccounts[i].Account < st.TopAccounts[j].Account
	})
	if len(st.TopAccounts) > topAccounts {
		st.TopAccounts = st.TopAccounts[:topAccounts]
	}
	return st
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
