package schedule

import (
	"errors"
	"time"
)

const (
	DateLayout    = "2006-01-02"
	ClockLayout   = "15:04"
	compactLayout = "20060102"
)

var (
	ErrInvalidDate  = errors.New("invalid date format")
	ErrInvalidTime  = errors.New("invalid time format")
	ErrInvalidRange = errors.New("invalid date range")
)

func ParseDate(dateStr string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation(DateLayout, dateStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return date, nil
}

func ParseDateTime(dateStr, timeStr string, loc *time.Location) (time.Time, error) {
	if _, err := time.Parse(ClockLayout, timeStr); err != nil {
		return time.Time{}, ErrInvalidTime
	}
	_, err := ParseDate(dateStr, loc)
	if err != nil {
		return time.Time{}, err
	}

	parsed, err := time.ParseInLocation(DateLayout+" "+ClockLayout, dateStr+" "+timeStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}

	return parsed, nil
}

// StartOfDay is local midnight of the calendar day now falls on in loc.
func StartOfDay(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns [start, end) of the calendar day now falls on in loc.
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	start := StartOfDay(now, loc)
	return start, start.AddDate(0, 0, 1)
}

func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(DateLayout)
}

// Tomorrow is the calendar date after now in loc, as YYYY-MM-DD.
func Tomorrow(now time.Time, loc *time.Location) string {
	return StartOfDay(now, loc).AddDate(0, 0, 1).Format(DateLayout)
}

// Compact renders the calendar day of now in loc as YYYYMMDD.
func Compact(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(compactLayout)
}

func IsDatePast(dateStr string, loc *time.Location, now time.Time) (bool, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return false, err
	}
	return date.Before(StartOfDay(now, loc)), nil
}

// ValidateRange checks both bounds are dates and from is not after to.
// Either bound may be empty.
func ValidateRange(from, to string, loc *time.Location) error {
	var fromDate, toDate time.Time
	var err error
	if from != "" {
		if fromDate, err = ParseDate(from, loc); err != nil {
			return err
		}
	}
	if to != "" {
		if toDate, err = ParseDate(to, loc); err != nil {
			return err
		}
	}
	if from != "" && to != "" && fromDate.After(toDate) {
		return ErrInvalidRange
	}
	return nil
}
