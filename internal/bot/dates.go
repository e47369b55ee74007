package bot

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateResult classifies what parseTargetDate found.
type dateResult int

const (
	dateMissing dateResult = iota
	dateFound
	dateVague
	dateInvalid
)

const monthAlt = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

var (
	isoDatePattern   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	monthDayPattern  = regexp.MustCompile(`(?i)\b(` + monthAlt + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	dayMonthPattern  = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthAlt + `)\b(?:,?\s+(\d{4})\b)?`)
	relativePattern  = regexp.MustCompile(`(?i)\bin\s+(\d{1,3})\s+(day|days|week|weeks|month|months)\b`)
	tomorrowPattern  = regexp.MustCompile(`(?i)\btomorrow\b`)
	vagueDatePattern = regexp.MustCompile(`(?i)\b(soon|someday|eventually|later|next\s+(?:week|month|year)|this\s+(?:week|month|year)|end\s+of\s+(?:the\s+)?(?:week|month|year)|by\s+summer|by\s+winter)\b`)
)

var monthByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// endOfDay is the last second of the given calendar day in UTC.
func endOfDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

// calendarDate builds a date and rejects overflow such as February 30.
func calendarDate(y int, m time.Month, d int) (time.Time, bool) {
	t := endOfDay(y, m, d)
	return t, t.Year() == y && t.Month() == m && t.Day() == d
}

// parseTargetDate finds the target date in text. Dates without a year and
// vague phrases are reported as dateVague rather than guessed.
func parseTargetDate(text string, now time.Time) (time.Time, dateResult) {
	now = now.UTC()

	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo < 1 || mo > 12 {
			return time.Time{}, dateInvalid
		}
		t, ok := calendarDate(y, time.Month(mo), d)
		if !ok {
			return time.Time{}, dateInvalid
		}
		return t, dateFound
	}

	for _, p := range []struct {
		re             *regexp.Regexp
		monthIdx, dIdx int
	}{
		{monthDayPattern, 1, 2},
		{dayMonthPattern, 2, 1},
	} {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if m[3] == "" {
			return time.Time{}, dateVague
		}
		y, _ := strconv.Atoi(m[3])
		d, _ := strconv.Atoi(m[p.dIdx])
		mo := monthByPrefix[strings.ToLower(m[p.monthIdx][:3])]
		t, ok := calendarDate(y, mo, d)
		if !ok {
			return time.Time{}, dateInvalid
		}
		return t, dateFound
	}

	if m := relativePattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n == 0 {
			return time.Time{}, dateInvalid
		}
		var t time.Time
		switch strings.TrimSuffix(strings.ToLower(m[2]), "s") {
		case "day":
			t = now.AddDate(0, 0, n)
		case "week":
			t = now.AddDate(0, 0, 7*n)
		case "month":
			t = now.AddDate(0, n, 0)
		}
		return endOfDay(t.Year(), t.Month(), t.Day()), dateFound
	}

	if tomorrowPattern.MatchString(text) {
		t := now.AddDate(0, 0, 1)
		return endOfDay(t.Year(), t.Month(), t.Day()), dateFound
	}

	if vagueDatePattern.MatchString(text) {
		return time.Time{}, dateVague
	}
	return time.Time{}, dateMissing
}
