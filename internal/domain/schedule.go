package domain

import "time"

// Schedule — повторяющаяся проверка BOM по расписанию.
//
// Scheduler проверяет NextDueAt и подаёт BOM в конвейер, когда время подошло.
type Schedule struct {
	// Name — уникальное имя расписания. Используется как имя проекта.
	Name string `json:"name" toml:"name"`

	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Примеры:
	//   "0 9 * * 1"     — каждый понедельник в 9:00
	//   "0 0 1 * *"     — первого числа каждого месяца
	CronExpr string `json:"cron_expr" toml:"cron"`

	// Timezone — часовой пояс для вычисления времени. По умолчанию: "UTC".
	Timezone string `json:"timezone" toml:"timezone"`

	// BOMPath — путь к CSV-файлу BOM.
	BOMPath string `json:"bom_path" toml:"bom"`

	// IntakePath — путь к intake YAML. Необязателен.
	IntakePath string `json:"intake_path,omitempty" toml:"intake"`

	// Enabled — флаг активности расписания.
	Enabled bool `json:"enabled" toml:"enabled"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty" toml:"-"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty" toml:"-"`

	// LastSubmissionID — идентификатор последней подачи.
	LastSubmissionID string `json:"last_submission_id,omitempty" toml:"-"`
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextDueAt == nil {
		return false
	}
	return now.After(*s.NextDueAt) || now.Equal(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(submissionID string, now, nextDue time.Time) {
	s.LastRunAt = &now
	s.LastSubmissionID = submissionID
	s.NextDueAt = &nextDue
}
