package services

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidDateTime = errors.New("invalid date and time")

var (
	fullDateTime  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})\s+(\d{1,2})[:hH](\d{2})$`)
	shortDateTime = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})\s+(\d{1,2})[:hH](\d{2})$`)
	timeOnly      = regexp.MustCompile(`^(\d{1,2})[:hH](\d{2})?$`)
)

// ParseAppointmentTime reads "JJ/MM/AAAA HH:MM", "JJ/MM HH:MM" or "HH:MM" in
// loc. Missing date parts are taken from now. "14h" and "14h30" are accepted.
func ParseAppointmentTime(text string, now time.Time, loc *time.Location) (time.Time, error) {
	text = strings.Join(strings.Fields(text), " ")
	local := now.In(loc)

	var year, month, day, hour, minute int
	switch {
	case fullDateTime.MatchString(text):
		m := fullDateTime.FindStringSubmatch(text)
		day, month, year, hour, minute = atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5])
	case shortDateTime.MatchString(text):
		m := shortDateTime.FindStringSubmatch(text)
		day, month, year, hour, minute = atoi(m[1]), atoi(m[2]), local.Year(), atoi(m[3]), atoi(m[4])
	case timeOnly.MatchString(text):
		m := timeOnly.FindStringSubmatch(text)
		year, month, day = local.Year(), int(local.Month()), local.Day()
		hour, minute = atoi(m[1]), atoi(m[2])
	default:
		return time.Time{}, ErrInvalidDateTime
	}

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, ErrInvalidDateTime
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	// time.Date normalizes 31/02 into March; reject it instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, ErrInvalidDateTime
	}
	return t, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
