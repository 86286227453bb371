package scheduler

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"

	"TenderWatch/internal/ports"
)

// CronEvaluator matches five-field cron expressions against a minute.
// Parsed schedules are cached per expression.
type CronEvaluator struct {
	parser cron.Parser

	mu    sync.Mutex
	cache map[string]cron.Schedule
}

var _ ports.ScheduleEvaluator = (*CronEvaluator)(nil)

// NewCronEvaluator builds an evaluator for standard minute-resolution expressions.
func NewCronEvaluator() *CronEvaluator {
	return &CronEvaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		cache:  map[string]cron.Schedule{},
	}
}

// IsDue reports whether expr fires at the minute containing at.
func (c *CronEvaluator) IsDue(expr string, at time.Time) (bool, error) {
	sched, err := c.parse(expr)
	if err != nil {
		return false, err
	}

	minute := time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), 0, 0, at.Location())
	return sched.Next(minute.Add(-time.Second)).Equal(minute), nil
}

// Next returns the first activation strictly after from.
func (c *CronEvaluator) Next(expr string, from time.Time) (time.Time, error) {
	sched, err := c.parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

func (c *CronEvaluator) parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("empty cron expression")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if sched, ok := c.cache[expr]; ok {
		return sched, nil
	}
	sched, err := c.parser.Parse(sundayAsZero(expr))
	if err != nil {
		return nil, errors.Wrapf(err, "parse cron expression %q", expr)
	}
	c.cache[expr] = sched
	return sched, nil
}

// sundayAsZero rewrites day-of-week 7 to 0. Both mean Sunday in common cron
// dialects but the parser only accepts 0-6.
func sundayAsZero(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}

	parts := strings.Split(fields[4], ",")
	for i, part := range parts {
		base, step := part, ""
		if j := strings.IndexByte(part, '/'); j >= 0 {
			base, step = part[:j], part[j:]
		}
		switch {
		case base == "7":
			parts[i] = "0" + step
		case step == "" && strings.HasSuffix(base, "-7"):
			lo := strings.TrimSuffix(base, "-7")
			if lo == "7" {
				parts[i] = "0"
			} else {
				parts[i] = lo + "-6,0"
			}
		}
	}
	fields[4] = strings.Join(parts, ",")
	return strings.Join(fields, " ")
}
