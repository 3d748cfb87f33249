package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all operator-facing settings. Values come from defaults, an
// optional taskpulse.yaml in the working directory, and TASKPULSE_* env
// variables, in increasing precedence.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SweepConfig tunes the deadline engine. CronExpr, when set, replaces the
// fixed interval with a cron schedule.
type SweepConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	CronExpr         string        `mapstructure:"cron_expr"`
	UpcomingWindow   time.Duration `mapstructure:"upcoming_window"`
	OverdueExempt    []string      `mapstructure:"overdue_exempt"`
	ReminderEligible []string      `mapstructure:"reminder_eligible"`
}

// SMTPConfig configures the mail relay. An empty Host selects the log sink.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	From     string `mapstructure:"from"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.path", "taskpulse.db")
	v.SetDefault("sweep.interval", time.Minute)
	v.SetDefault("sweep.cron_expr", "")
	v.SetDefault("sweep.upcoming_window", 24*time.Hour)
	v.SetDefault("sweep.overdue_exempt", []string{"completed", "trash", "Past due"})
	v.SetDefault("sweep.reminder_eligible", []string{"pending", "doing"})
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")

	v.SetConfigName("taskpulse")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvPrefix("TASKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
