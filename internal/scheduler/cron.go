package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/bomflow/internal/domain"
)

// cronParser — стандартный пятипольный формат, плюс дескрипторы (@daily, @weekly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NextDue вычисляет время следующей проверки после from.
//
// Cron вычисляется в часовом поясе расписания, результат — в UTC.
// Неизвестный часовой пояс — ошибка, а не молчаливый UTC.
func NextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := location(sched.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	spec, err := cronParser.Parse(sched.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidCron, sched.CronExpr, err)
	}

	next := spec.Next(from.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q never fires", ErrInvalidCron, sched.CronExpr)
	}
	return next.UTC(), nil
}

// Validate проверяет расписание целиком.
func Validate(sched *domain.Schedule) error {
	if sched.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSchedule)
	}
	if sched.BOMPath == "" {
		return fmt.Errorf("%w: %s: bom path is required", ErrInvalidSchedule, sched.Name)
	}
	if _, err := cronParser.Parse(sched.CronExpr); err != nil {
		return fmt.Errorf("%w: %s: %q: %v", ErrInvalidCron, sched.Name, sched.CronExpr, err)
	}
	if _, err := location(sched.Timezone); err != nil {
		return fmt.Errorf("%s: %w", sched.Name, err)
	}
	return nil
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q", ErrInvalidSchedule, tz)
	}
	return loc, nil
}
