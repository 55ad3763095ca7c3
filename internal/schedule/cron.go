package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Watches use standard 5-field cron expressions: minute, hour, day of
// month, month, day of week.
var cadenceParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron rejects expressions the scheduler cannot parse.
func ValidateCron(expr string) error {
	if _, err := cadenceParser.Parse(expr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	return nil
}

// NextRun returns the first firing of expr strictly after the given time.
func NextRun(expr string, after time.Time) (time.Time, error) {
	sched, err := cadenceParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	return sched.Next(after), nil
}
