package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"autorenew/internal/domain"
)

// Schedules are standard five-field cron expressions with an optional leading
// seconds field, or descriptors such as "@daily".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func Parse(expr string) (cron.Schedule, error) {
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidSchedule, expr, err)
	}
	return s, nil
}

// ValidateCronExpression validates a cron expression
func ValidateCronExpression(expr string) error {
	_, err := Parse(expr)
	return err
}

// NextRunTime calculates the next run time for a cron expression
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	s, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(from), nil
}
