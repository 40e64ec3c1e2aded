package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "REFIND_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "REFIND_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "REFIND_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "matching.schedule", typ: kString, env: "REFIND_MATCHING_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Matching.Schedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Matching.Schedule },
	},
	{
		key: "matching.reminder_schedule", typ: kString, env: "REFIND_MATCHING_REMINDER_SCHEDULE",
		apply:   func(cfg *Config, v any) { cfg.Matching.ReminderSchedule = v.(string) },
		extract: func(cfg Config) any { return cfg.Matching.ReminderSchedule },
	},
	{
		key: "matching.reminder_after_days", typ: kInt, env: "REFIND_MATCHING_REMINDER_AFTER_DAYS",
		apply:   func(cfg *Config, v any) { cfg.Matching.ReminderAfterDays = v.(int) },
		extract: func(cfg Config) any { return cfg.Matching.ReminderAfterDays },
	},
	{
		key: "notify.transport", typ: kString, env: "REFIND_NOTIFY_TRANSPORT",
		apply:   func(cfg *Config, v any) { cfg.Notify.Transport = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.Transport },
	},
	{
		key: "notify.amqp_url", typ: kString, env: "REFIND_NOTIFY_AMQP_URL", secret: true,
		apply:   func(cfg *Config, v any) { cfg.Notify.AMQPURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.AMQPURL },
	},
	{
		key: "notify.amqp_exchange", typ: kString, env: "REFIND_NOTIFY_AMQP_EXCHANGE",
		apply:   func(cfg *Config, v any) { cfg.Notify.AMQPExchange = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.AMQPExchange },
	},
	{
		key: "vision.base_url", typ: kString, env: "REFIND_VISION_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Vision.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Vision.BaseURL },
	},
	{
		key: "api.token", typ: kString, env: "REFIND_API_TOKEN", secret: true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, spec := range specs {
		switch spec.typ {
		case kString:
			val, ok, err := b.GetString(spec.key)
			if err != nil {
				return fmt.Errorf("reading config key %s: %w", spec.key, err)
			}
			if ok {
				spec.apply(cfg, val)
			}
		case kInt:
			val, ok, err := b.GetInt(spec.key)
			if err != nil {
				return fmt.Errorf("reading config key %s: %w", spec.key, err)
			}
			if ok {
				spec.apply(cfg, val)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, spec := range specs {
		raw, ok := os.LookupEnv(spec.env)
		if !ok || raw == "" {
			continue
		}
		switch spec.typ {
		case kString:
			spec.apply(cfg, raw)
		case kInt:
			if n, err := strconv.Atoi(raw); err == nil {
				spec.apply(cfg, n)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] ignoring non-integer %s=%q\n", spec.env, raw)
			}
		}
	}
}
