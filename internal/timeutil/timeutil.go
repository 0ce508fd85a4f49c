package timeutil

import "time"

var eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

// ToEastern converts a timestamp to US/Eastern, the timezone trade
// exports are written in.
func ToEastern(t time.Time) time.Time {
	return t.In(eastern)
}

// FormatEastern renders a timestamp in US/Eastern wall-clock form.
func FormatEastern(t time.Time) string {
	return ToEastern(t).Format("2006-01-02 15:04:05")
}
