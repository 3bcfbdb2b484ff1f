package attendance

import (
	"strings"
	"time"
)

// weekdays is the display and sort order of schedule days.
var weekdays = []string{
	time.Monday.String(),
	time.Tuesday.String(),
	time.Wednesday.String(),
	time.Thursday.String(),
	time.Friday.String(),
	time.Saturday.String(),
	time.Sunday.String(),
}

const clockLayout = "15:04"

// parseDay accepts a weekday name in any case and returns its canonical form.
func parseDay(day string) (string, bool) {
	day = strings.TrimSpace(day)
	for _, d := range weekdays {
		if strings.EqualFold(d, day) {
			return d, true
		}
	}
	return "", false
}

func newScheduleEntry(classID int64, day, start, end string) (ScheduleEntry, error) {
	d, ok := parseDay(day)
	if !ok {
		return ScheduleEntry{}, ErrInvalidSchedule
	}
	from, err := time.Parse(clockLayout, strings.TrimSpace(start))
	if err != nil {
		return ScheduleEntry{}, ErrInvalidSchedule
	}
	to, err := time.Parse(clockLayout, strings.TrimSpace(end))
	if err != nil {
		return ScheduleEntry{}, ErrInvalidSchedule
	}
	if !to.After(from) {
		return ScheduleEntry{}, ErrInvalidSchedule
	}
	return ScheduleEntry{
		ClassID:   classID,
		Day:       d,
		StartTime: from.Format(clockLayout),
		EndTime:   to.Format(clockLayout),
	}, nil
}
