package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Modes accepted by the CLI.
const (
	ModePoll   = "poll"
	ModeAdd    = "add"
	ModeDelete = "delete"
	ModeRepair = "repair"
	ModeServe  = "serve"
)

var (
	// ErrConfiguration is wrapped by every configuration error.
	ErrConfiguration = errors.New("configuration error")
	// ErrNoStorage means neither storage_path nor storage_dsn is set.
	ErrNoStorage = fmt.Errorf("%w: no storage: set PT_STORAGE_PATH (-d) or PT_STORAGE_DSN", ErrConfiguration)
	// ErrNoIDSource means add or delete was requested without product ids.
	ErrNoIDSource = fmt.Errorf("%w: no product ids: pass them with -p or PT_IDS", ErrConfiguration)
	// ErrInvalidMode means the mode is not one of poll, add, delete, repair, serve.
	ErrInvalidMode = fmt.Errorf("%w: invalid mode", ErrConfiguration)
	// ErrInvalidValue means a value failed validation.
	ErrInvalidValue = fmt.Errorf("%w: invalid value", ErrConfiguration)
)

var telegramToken = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]{20,}$`)

type Config struct {
	Env         string   // Env is the current environment: local, development, production.
	Mode        string   `validate:"oneof=poll add delete repair serve"`
	IDs         []string `validate:"dive,required"`
	StoragePath string
	StorageDSN  string
	BatchSize   int    `validate:"min=1,max=100"`
	Workers     int    `validate:"min=1,max=32"`
	Schedule    string `validate:"required"`
	Fetch       Fetch
	Log         Log
	Tg          Telegram
	Metrics     Metrics
}

type Fetch struct {
	Timeout         time.Duration `validate:"gt=0"`
	BatchTimeout    time.Duration `validate:"gt=0"`
	RateLimit       float64       `validate:"gte=0"` // requests per second, 0 disables limiting
	Burst           int           `validate:"min=1"`
	MaxRetries      int           `validate:"min=0,max=10"`
	RetryBackoff    time.Duration `validate:"gte=0"`
	RetryBackoffMax time.Duration `validate:"gte=0"`
	ItemURL         string        `validate:"required,url"`
	PriceURL        string        `validate:"required,url"`
	UserAgent       string        `validate:"required"`
}

type Log struct {
	File       string // File enables a rotating log file when set.
	MaxSizeMB  int    `validate:"min=1"`
	MaxBackups int    `validate:"min=0"`
	MaxAgeDays int    `validate:"min=0"`
}

type Telegram struct {
	Token   string        `validate:"omitempty,telegram_token"` // Token is an unique telgram bot token.
	Timeout time.Duration `validate:"gt=0"`                     // Timeout is a poller timeout duration.
}

type Metrics struct {
	File string // File is a node exporter textfile written after one-shot runs.
	Addr string `validate:"omitempty,hostname_port"` // Addr serves /metrics in serve mode.
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("mode", ModePoll)
	v.SetDefault("batch_size", 25)
	v.SetDefault("workers", 1)
	v.SetDefault("schedule", "@every 1h")
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.batch_timeout", "2m")
	v.SetDefault("fetch.rate_limit", 2)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.retry_backoff", "500ms")
	v.SetDefault("fetch.retry_backoff_max", "5s")
	v.SetDefault("fetch.item_url", "https://item.jd.com/")
	v.SetDefault("fetch.price_url", "https://p.3.cn/prices/mgets")
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/88.0.4324.182 Safari/537.36")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("telegram.timeout", "15s")
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("pricetracker", pflag.ContinueOnError)
	flags.StringP("mode", "m", ModePoll, "run mode: poll, add, delete, repair or serve")
	flags.StringSliceP("ids", "p", nil, "product ids; poll uses every stored product when empty")
	flags.StringP("storage_path", "d", "", "SQLite database file")
	flags.String("storage_dsn", "", "PostgreSQL connection string, used instead of storage_path")
	flags.Int("batch_size", 25, "products per fetch batch")
	flags.Int("workers", 1, "batches processed concurrently")
	flags.String("schedule", "@every 1h", "poll schedule in serve mode")
	flags.String("metrics.file", "", "write metrics to this textfile after a one-shot run")
	flags.String("metrics.addr", "", "serve /metrics on this address in serve mode")
	flags.String("env", "production", "logging profile: local, development or production")

	return flags
}

// Load reads .env, the environment (prefix PT_) and args, then validates the result.
// Flags win over the environment. pflag.ErrHelp is returned as is.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: failed to load .env: %w", ErrConfiguration, err)
	}

	v := viper.New()
	v.SetEnvPrefix("PT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("%w: failed to bind flags: %w", ErrConfiguration, err)
	}

	cfg := &Config{
		Env:         v.GetString("env"),
		Mode:        strings.ToLower(v.GetString("mode")),
		IDs:         splitIDs(v.GetStringSlice("ids")),
		StoragePath: v.GetString("storage_path"),
		StorageDSN:  v.GetString("storage_dsn"),
		BatchSize:   v.GetInt("batch_size"),
		Workers:     v.GetInt("workers"),
		Schedule:    v.GetString("schedule"),
		Fetch: Fetch{
			Timeout:         v.GetDuration("fetch.timeout"),
			BatchTimeout:    v.GetDuration("fetch.batch_timeout"),
			RateLimit:       v.GetFloat64("fetch.rate_limit"),
			Burst:           v.GetInt("fetch.burst"),
			MaxRetries:      v.GetInt("fetch.max_retries"),
			RetryBackoff:    v.GetDuration("fetch.retry_backoff"),
			RetryBackoffMax: v.GetDuration("fetch.retry_backoff_max"),
			ItemURL:         v.GetString("fetch.item_url"),
			PriceURL:        v.GetString("fetch.price_url"),
			UserAgent:       v.GetString("fetch.user_agent"),
		},
		Log: Log{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		Tg: Telegram{
			Token:   v.GetString("telegram.token"),
			Timeout: v.GetDuration("telegram.timeout"),
		},
		Metrics: Metrics{
			File: v.GetString("metrics.file"),
			Addr: v.GetString("metrics.addr"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the cross-field rules, then the field rules.
func (c *Config) Validate() error {
	if !slices.Contains([]string{ModePoll, ModeAdd, ModeDelete, ModeRepair, ModeServe}, c.Mode) {
		return fmt.Errorf("%w %q", ErrInvalidMode, c.Mode)
	}

	if c.StoragePath == "" && c.StorageDSN == "" {
		return ErrNoStorage
	}

	if (c.Mode == ModeAdd || c.Mode == ModeDelete) && len(c.IDs) == 0 {
		return ErrNoIDSource
	}

	if err := newValidator().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	return nil
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("telegram_token", func(fl validator.FieldLevel) bool {
		return telegramToken.MatchString(fl.Field().String())
	})

	return validate
}

// splitIDs accepts ids separated by commas or whitespace, from flags or PT_IDS.
func splitIDs(values []string) []string {
	var ids []string
	for _, value := range values {
		ids = append(ids, strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		})...)
	}

	return ids
}
