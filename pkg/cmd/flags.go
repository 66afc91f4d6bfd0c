package cmd

import (
	"time"

	"github.com/agencyops/taskflow/pkg/automation"
	"github.com/agencyops/taskflow/pkg/rulecache"
	"github.com/agencyops/taskflow/pkg/timer"
	cli "github.com/urfave/cli/v3"
)

// EngineFlags are shared by every binary that runs the lifecycle and automation engine.
func EngineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (file://dir, postgres://..., sqlite://path)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (kafka, gochannel)",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "notifier",
			Usage:   "Notification delivery (log, bus, nats://host:4222)",
			Value:   "log",
			Sources: cli.EnvVars("NOTIFIER_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for the active rule cache (disabled when empty)",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.DurationFlag{
			Name:    "rule-cache-ttl",
			Usage:   "How long cached rule lists are kept",
			Value:   rulecache.DefaultTTL,
			Sources: cli.EnvVars("RULE_CACHE_TTL"),
		},
		&cli.IntFlag{
			Name:    "max-rule-depth",
			Usage:   "Automation hops after which rule-triggered events stop propagating",
			Value:   automation.DefaultMaxDepth,
			Sources: cli.EnvVars("MAX_RULE_DEPTH"),
		},
		&cli.IntFlag{
			Name:    "action-retries",
			Usage:   "Retries for transient action failures",
			Value:   int(automation.DefaultRetryPolicy.MaxRetries),
			Sources: cli.EnvVars("ACTION_RETRIES"),
		},
		&cli.StringFlag{
			Name:    "timer-overdue-schedule",
			Usage:   "Cron schedule for the overdue timer sweep",
			Value:   timer.DefaultOverdueSchedule,
			Sources: cli.EnvVars("TIMER_OVERDUE_SCHEDULE"),
		},
		&cli.DurationFlag{
			Name:    "timer-overdue-after",
			Usage:   "Running time after which a timer session is reported overdue",
			Value:   timer.DefaultOverdueThreshold,
			Sources: cli.EnvVars("TIMER_OVERDUE_AFTER"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

// Settings are the parsed EngineFlags.
type Settings struct {
	DatabaseURL   string
	EventBus      string
	Notifier      string
	RedisURL      string
	RuleCacheTTL  time.Duration
	MaxRuleDepth  int
	ActionRetries uint64
	Tracing       bool
	LogLevel      string

	OverdueSchedule string
	OverdueAfter    time.Duration
}

func SettingsFrom(command *cli.Command) Settings {
	return Settings{
		DatabaseURL:   command.String("database-url"),
		EventBus:      command.String("event-bus"),
		Notifier:      command.String("notifier"),
		RedisURL:      command.String("redis-url"),
		RuleCacheTTL:  command.Duration("rule-cache-ttl"),
		MaxRuleDepth:  command.Int("max-rule-depth"),
		ActionRetries: uint64(max(command.Int("action-retries"), 0)),
		Tracing:       command.Bool("tracing"),
		LogLevel:      command.String("log-level"),

		OverdueSchedule: command.String("timer-overdue-schedule"),
		OverdueAfter:    command.Duration("timer-overdue-after"),
	}
}
