package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"2006/01/02",
	"02/01/06",
}

var portugueseMonths = map[string]time.Month{
	"janeiro": time.January, "fevereiro": time.February, "março": time.March,
	"marco": time.March, "abril": time.April, "maio": time.May,
	"junho": time.June, "julho": time.July, "agosto": time.August,
	"setembro": time.September, "outubro": time.October,
	"novembro": time.November, "dezembro": time.December,
}

var longDatePattern = regexp.MustCompile(`(?i)(\d{1,2})\s+de\s+([a-zçã]+)\s+de\s+(\d{4})`)

// ParseDate interprets the date formats that show up in reports: numeric
// day-first forms, ISO, and the written Portuguese form
// "12 de março de 2025". The result is a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if m := longDatePattern.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		month, ok := portugueseMonths[strings.ToLower(m[2])]
		if ok && day >= 1 && day <= 31 {
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
