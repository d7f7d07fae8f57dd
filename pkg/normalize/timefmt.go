package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"weibocrawler/pkg/models"
)

var cst = models.ChinaTime

var (
	minutesAgo = regexp.MustCompile(`^(\d+)\s*分钟前$`)
	hoursAgo   = regexp.MustCompile(`^(\d+)\s*小时前$`)
)

// ParseCreatedAt parses the timestamp formats the API uses: the full
// "Mon Jan 02 15:04:05 -0700 2006" form, plain dates with or without the
// year, and the relative forms 刚刚, N分钟前, N小时前 and 昨天 HH:MM.
func ParseCreatedAt(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	now = now.In(cst)

	if t, err := time.Parse(time.RubyDate, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, cst); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("01-02", s, cst); err == nil {
		return time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, cst), nil
	}

	switch {
	case s == "刚刚":
		return now, nil
	case strings.HasPrefix(s, "昨天"):
		clock, err := time.Parse("15:04", strings.TrimSpace(strings.TrimPrefix(s, "昨天")))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid created_at %q: %w", s, err)
		}
		y := now.AddDate(0, 0, -1)
		return time.Date(y.Year(), y.Month(), y.Day(), clock.Hour(), clock.Minute(), 0, 0, cst), nil
	}
	if m := minutesAgo.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * time.Minute), nil
	}
	if m := hoursAgo.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * time.Hour), nil
	}
	return time.Time{}, fmt.Errorf("invalid created_at %q", s)
}
