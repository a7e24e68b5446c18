package scheduling

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ResolveTimeExpression parses a free-text expression like "tomorrow at 3pm"
// or "2pm on June 26" into an absolute instant, evaluated against the given
// now in the lead's timezone. It only parses; it never consults availability.
// ok is false when the text yields no unambiguous instant, which callers
// treat as "ask the user to clarify" rather than an error. A date without a
// time of day is considered ambiguous.
func ResolveTimeExpression(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return time.Time{}, false
	}

	local := now.In(loc)

	hour, minute, haveTime := parseTimeOfDay(normalized)
	day, haveDay, fromWeekday := parseDay(normalized, local)

	if !haveTime {
		return time.Time{}, false
	}
	if !haveDay {
		// Time only: today if still in the future, otherwise tomorrow.
		candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !candidate.After(local) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, true
	}

	candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	if fromWeekday && !candidate.After(local) {
		// "friday at 3pm" said on a Friday afternoon means next week.
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate, true
}

var (
	clockPattern    = regexp.MustCompile(`\b(\d{1,2})[:.](\d{2})\s*(am|pm)?\b`)
	meridiemHour    = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
	isoDatePattern  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dayMonthPattern = regexp.MustCompile(`\b(\d{1,2})[-/](\d{1,2})\b`)
)

// parseTimeOfDay extracts an hour and minute from the text. Explicit clock
// times win over daypart words so "tomorrow morning at 11:30" reads 11:30.
// Both ":" and "." separate hour from minute ("15:30", "15.30").
func parseTimeOfDay(text string) (hour, minute int, ok bool) {
	for _, m := range clockPattern.FindAllStringSubmatch(text, -1) {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		if h > 23 || min > 59 {
			// Dotted dates like "26.06" look clock-shaped; skip them.
			continue
		}
		h = applyMeridiem(h, m[3])
		return h, min, true
	}
	if m := meridiemHour.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		return applyMeridiem(h, m[2]), 0, true
	}
	if strings.Contains(text, "noon") {
		return 12, 0, true
	}

	// Daypart words map to representative hours.
	switch {
	case strings.Contains(text, "morning"):
		return 9, 0, true
	case strings.Contains(text, "afternoon"):
		return 14, 0, true
	case strings.Contains(text, "evening"), strings.Contains(text, "tonight"):
		return 18, 0, true
	}
	return 0, 0, false
}

func applyMeridiem(hour int, meridiem string) int {
	switch meridiem {
	case "pm":
		if hour < 12 {
			return hour + 12
		}
	case "am":
		if hour == 12 {
			return 0
		}
	case "":
		// Bare hours 1-7 on a 12h-looking clock are assumed to be
		// afternoon; people rarely book viewings before 8am.
		if hour >= 1 && hour <= 7 {
			return hour + 12
		}
	}
	return hour
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

// parseDay extracts a calendar day from the text, relative to local. The
// weekday return is true when the day came from a bare weekday word, whose
// occurrence can only be pinned down once the time of day is known.
func parseDay(text string, local time.Time) (day time.Time, ok, weekday bool) {
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || d < 1 || d > 31 {
			return time.Time{}, false, false
		}
		return time.Date(year, time.Month(month), d, 0, 0, 0, 0, local.Location()), true, false
	}

	if strings.Contains(text, "today") || strings.Contains(text, "tonight") {
		return local, true, false
	}
	if strings.Contains(text, "tomorrow") {
		return local.AddDate(0, 0, 1), true, false
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})

	for i, word := range words {
		if month, ok := months[word]; ok {
			if d, ok := adjacentDayNumber(words, i); ok {
				return nextMonthDay(local, month, d), true, false
			}
		}
		if wd, ok := weekdays[word]; ok {
			skipCurrentWeek := i > 0 && words[i-1] == "next"
			return nextWeekday(local, wd, skipCurrentWeek), true, true
		}
	}

	// Numeric day-month ("26-06", "26/6") resolves last so ranges like
	// "10-11" near a month word keep their word-based reading.
	if m := dayMonthPattern.FindStringSubmatch(text); m != nil {
		d, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 && d >= 1 && d <= 31 {
			return nextMonthDay(local, time.Month(month), d), true, false
		}
	}
	return time.Time{}, false, false
}

// adjacentDayNumber looks for a day-of-month number directly before or after
// a month word ("june 26", "26 june", "26th of june").
func adjacentDayNumber(words []string, monthIdx int) (int, bool) {
	candidates := make([]string, 0, 2)
	if monthIdx+1 < len(words) {
		candidates = append(candidates, words[monthIdx+1])
	}
	for back := monthIdx - 1; back >= 0 && back >= monthIdx-2; back-- {
		if words[back] == "of" || words[back] == "the" {
			continue
		}
		candidates = append(candidates, words[back])
		break
	}
	for _, c := range candidates {
		c = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(c, "st"), "nd"), "rd"), "th")
		if n, err := strconv.Atoi(c); err == nil && n >= 1 && n <= 31 {
			return n, true
		}
	}
	return 0, false
}

// nextMonthDay picks the next occurrence of month/day, rolling to next year
// when the date has already passed.
func nextMonthDay(local time.Time, month time.Month, day int) time.Time {
	candidate := time.Date(local.Year(), month, day, 0, 0, 0, 0, local.Location())
	if candidate.YearDay() < local.YearDay() && candidate.Year() == local.Year() {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return candidate
}

// nextWeekday picks the next occurrence of wd strictly after today unless it
// is today; "next monday" skips the current week entirely.
func nextWeekday(local time.Time, wd time.Weekday, skipCurrentWeek bool) time.Time {
	delta := (int(wd) - int(local.Weekday()) + 7) % 7
	if skipCurrentWeek {
		delta += 7
	}
	return local.AddDate(0, 0, delta)
}
