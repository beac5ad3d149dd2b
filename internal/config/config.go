// Package config загружает конфигурацию сервисов bomflow.
//
// Порядок: Default() → TOML-файл (Load) → переменные окружения (ApplyEnv) → Validate.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/shaiso/bomflow/internal/domain"
	"github.com/shaiso/bomflow/internal/narrate"
)

// DefaultPath — путь к файлу конфигурации, если BOMFLOW_CONFIG не задан.
const DefaultPath = "bomflow.toml"

// ErrInvalid — конфигурация не прошла проверку.
var ErrInvalid = errors.New("invalid config")

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	RabbitMQ  RabbitMQConfig  `toml:"rabbitmq"`
	Knowledge KnowledgeConfig `toml:"knowledge"`
	Intel     IntelConfig     `toml:"intel"`
	Narrator  NarratorConfig  `toml:"narrator"`
	API       APIConfig       `toml:"api"`
	Worker    WorkerConfig    `toml:"worker"`
	Scheduler SchedulerConfig `toml:"scheduler"`

	Schedules []domain.Schedule `toml:"schedules"`
}

type DatabaseConfig struct {
	// URL — DSN PostgreSQL. Пустой — проекты хранятся в памяти процесса.
	URL string `toml:"url"`
}

type RabbitMQConfig struct {
	// URL — AMQP URL. Пустой — асинхронные подачи отключены.
	URL string `toml:"url"`
}

type KnowledgeConfig struct {
	Path string `toml:"path"`

	// SeedSuppliers — заполнить справочник поставщиков при старте.
	SeedSuppliers bool `toml:"seed_suppliers"`
}

type IntelConfig struct {
	// URL — адрес сервиса рыночной аналитики. Пустой — этап пропускается.
	URL        string `toml:"url"`
	Token      string `toml:"token"`
	TimeoutSec int    `toml:"timeout_sec"`
}

type NarratorConfig struct {
	// Provider — none | anthropic | openai.
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`

	// APIKey только из окружения.
	APIKey string `toml:"-"`
}

type APIConfig struct {
	Port int `toml:"port"`
}

type WorkerConfig struct {
	Prefetch           int `toml:"prefetch"`
	RecoverIntervalSec int `toml:"recover_interval_sec"`
	MetricsPort        int `toml:"metrics_port"`

	// LeaseTTLSec — срок аренды проекта. 0 — значение движка по умолчанию.
	LeaseTTLSec int `toml:"lease_ttl_sec"`
}

type SchedulerConfig struct {
	TickIntervalSec int `toml:"tick_interval_sec"`
	MetricsPort     int `toml:"metrics_port"`
}

// Default возвращает конфигурацию для локальной разработки.
func Default() Config {
	return Config{
		Knowledge: KnowledgeConfig{
			Path:          "data/knowledge.db",
			SeedSuppliers: true,
		},
		Intel: IntelConfig{
			TimeoutSec: 10,
		},
		Narrator: NarratorConfig{
			Provider:  narrate.ProviderNone,
			MaxTokens: narrate.DefaultMaxTokens,
		},
		API: APIConfig{
			Port: 8080,
		},
		Worker: WorkerConfig{
			Prefetch:    2,
			MetricsPort: 8082,
		},
		Scheduler: SchedulerConfig{
			TickIntervalSec: 30,
			MetricsPort:     8081,
		},
	}
}

// Load читает TOML поверх defaults. Отсутствующий или пустой файл — не ошибка.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}
	return cfg, nil
}

// FromEnv — конфигурация процесса: файл из BOMFLOW_CONFIG (или DefaultPath),
// переопределения из окружения, проверка.
func FromEnv() (Config, error) {
	path := os.Getenv("BOMFLOW_CONFIG")
	if path == "" {
		path = DefaultPath
	}

	cfg, err := Load(path, Default())
	if err != nil {
		return Config{}, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv переопределяет поля значениями из окружения.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	setString(&c.Database.URL, "DB_URL")
	setString(&c.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&c.Knowledge.Path, "KNOWLEDGE_DB")
	setString(&c.Intel.URL, "INTEL_URL")
	setString(&c.Intel.Token, "INTEL_TOKEN")
	setString(&c.Narrator.Provider, "NARRATOR_PROVIDER")
	setString(&c.Narrator.Model, "NARRATOR_MODEL")

	if v := strings.TrimSpace(getenv("API_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: API_PORT %q", ErrInvalid, v)
		}
		c.API.Port = port
	}

	switch strings.ToLower(c.Narrator.Provider) {
	case narrate.ProviderAnthropic:
		setString(&c.Narrator.APIKey, "ANTHROPIC_API_KEY")
	case narrate.ProviderOpenAI:
		setString(&c.Narrator.APIKey, "OPENAI_API_KEY")
	}
	return nil
}

// Validate проверяет конфигурацию.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Knowledge.Path) == "" {
		return fmt.Errorf("%w: knowledge.path is required", ErrInvalid)
	}

	for name, raw := range map[string]string{"database.url": c.Database.URL, "rabbitmq.url": c.RabbitMQ.URL, "intel.url": c.Intel.URL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" {
			return fmt.Errorf("%w: %s is not a URL", ErrInvalid, name)
		}
	}

	switch strings.ToLower(c.Narrator.Provider) {
	case "", narrate.ProviderNone, narrate.ProviderAnthropic, narrate.ProviderOpenAI:
	default:
		return fmt.Errorf("%w: narrator.provider %q", ErrInvalid, c.Narrator.Provider)
	}
	if c.Narrator.MaxTokens < 0 {
		return fmt.Errorf("%w: narrator.max_tokens must be >= 0", ErrInvalid)
	}

	for name, port := range map[string]int{"api.port": c.API.Port, "worker.metrics_port": c.Worker.MetricsPort, "scheduler.metrics_port": c.Scheduler.MetricsPort} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%w: %s out of range: %d", ErrInvalid, name, port)
		}
	}

	for name, v := range map[string]int{
		"intel.timeout_sec":           c.Intel.TimeoutSec,
		"worker.prefetch":             c.Worker.Prefetch,
		"worker.recover_interval_sec": c.Worker.RecoverIntervalSec,
		"worker.lease_ttl_sec":        c.Worker.LeaseTTLSec,
		"scheduler.tick_interval_sec": c.Scheduler.TickIntervalSec,
	} {
		if v < 0 {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalid, name)
		}
	}

	seen := make(map[string]struct{}, len(c.Schedules))
	for i, s := range c.Schedules {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: schedules[%d].name is required", ErrInvalid, i)
		}
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("%w: schedules[%d].name is duplicated: %s", ErrInvalid, i, s.Name)
		}
		seen[s.Name] = struct{}{}
		if s.CronExpr == "" || s.BOMPath == "" {
			return fmt.Errorf("%w: schedules[%d] needs cron and bom", ErrInvalid, i)
		}
	}
	return nil
}

// NarrateConfig — настройки рассказчика в форме narrate.Config.
func (c Config) NarrateConfig() narrate.Config {
	return narrate.Config{
		Provider:  strings.ToLower(c.Narrator.Provider),
		Model:     c.Narrator.Model,
		APIKey:    c.Narrator.APIKey,
		MaxTokens: c.Narrator.MaxTokens,
	}
}

// IntelTimeout — таймаут запроса к сервису аналитики.
func (c Config) IntelTimeout() time.Duration {
	return time.Duration(c.Intel.TimeoutSec) * time.Second
}

// LeaseTTL — срок аренды проекта движком.
func (c Config) LeaseTTL() time.Duration {
	return time.Duration(c.Worker.LeaseTTLSec) * time.Second
}

// RecoverInterval — период восстановления прерванных проектов.
func (c Config) RecoverInterval() time.Duration {
	return time.Duration(c.Worker.RecoverIntervalSec) * time.Second
}

// TickInterval — период тика планировщика.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickIntervalSec) * time.Second
}
