package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fondos/internal/domain"
)

// Batch size bounds for persistence writes.
const (
	MinBatchSize     = 100
	MaxBatchSize     = 2000
	DefaultBatchSize = 500
)

// Config holds all importer configuration.
type Config struct {
	DB      DBConfig
	Import  ImportConfig
	Catalog CatalogConfig
	S3      S3Config
	Email   EmailConfig
	Log     LogConfig
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string. An explicit URL wins over
// the individual fields.
func (d *DBConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// ImportConfig controls a single pipeline run.
type ImportConfig struct {
	RecordType    string   `mapstructure:"record_type"`
	Sheet         string   `mapstructure:"sheet"`
	ConflictKey   string   `mapstructure:"conflict_key"`
	Period        int      `mapstructure:"period"`
	BatchSize     int      `mapstructure:"batch_size"`
	ProgressEvery int      `mapstructure:"progress_every"`
	Reset         bool     `mapstructure:"reset"`
	DryRun        bool     `mapstructure:"dry_run"`
	ExpectedCount int      `mapstructure:"expected_count"`
	IssuesCSV     string   `mapstructure:"issues_csv"`
	NotifyTo      []string `mapstructure:"notify_to"`
}

// CatalogConfig overrides the per-dimension resolution policies.
type CatalogConfig struct {
	AutoCreate           []string `mapstructure:"auto_create"`
	NoAutoCreate         []string `mapstructure:"no_auto_create"`
	NumericPassthrough   []string `mapstructure:"numeric_passthrough"`
	NoNumericPassthrough []string `mapstructure:"no_numeric_passthrough"`
}

// S3Config holds AWS S3 settings for remote workbooks and reports.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	ReportsPrefix string `mapstructure:"reports_prefix"`
}

// Enabled reports whether a bucket is configured for report uploads.
func (s *S3Config) Enabled() bool {
	return s.Bucket != ""
}

// EmailConfig holds run summary delivery settings.
type EmailConfig struct {
	Provider    string `mapstructure:"provider"`
	Region      string `mapstructure:"region"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envFiles are loaded, when present, before reading the environment.
var envFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads the existing files among paths into the process
// environment. Variables already set are not overridden.
func LoadEnvFiles(paths ...string) (int, error) {
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads configuration from environment variables with the FONDOS_ prefix.
func Load() (*Config, error) {
	if _, err := LoadEnvFiles(envFiles...); err != nil {
		return nil, fmt.Errorf("loading env files: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("FONDOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// DB defaults
	v.SetDefault("db.url", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "fondos")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "fondos_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 4)
	v.SetDefault("db.max_idle", 2)

	// Import defaults
	v.SetDefault("import.record_type", string(domain.RecordTypeProject))
	v.SetDefault("import.sheet", "")
	v.SetDefault("import.conflict_key", string(domain.ConflictOnCode))
	v.SetDefault("import.period", 0)
	v.SetDefault("import.batch_size", DefaultBatchSize)
	v.SetDefault("import.progress_every", 100)
	v.SetDefault("import.reset", false)
	v.SetDefault("import.dry_run", false)
	v.SetDefault("import.expected_count", 0)
	v.SetDefault("import.issues_csv", "")
	v.SetDefault("import.notify_to", "")

	// Catalog policy overrides (comma-separated dimension names)
	v.SetDefault("catalog.auto_create", "")
	v.SetDefault("catalog.no_auto_create", "")
	v.SetDefault("catalog.numeric_passthrough", "")
	v.SetDefault("catalog.no_numeric_passthrough", "")

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.reports_prefix", "import-reports")

	// Email defaults
	v.SetDefault("email.provider", "noop")
	v.SetDefault("email.region", "us-east-1")
	v.SetDefault("email.from_address", "noreply@fondos.local")
	v.SetDefault("email.from_name", "Fondos Importer")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"db.url":                         "FONDOS_DB_URL",
		"db.host":                        "FONDOS_DB_HOST",
		"db.port":                        "FONDOS_DB_PORT",
		"db.user":                        "FONDOS_DB_USER",
		"db.password":                    "FONDOS_DB_PASSWORD",
		"db.name":                        "FONDOS_DB_NAME",
		"db.sslmode":                     "FONDOS_DB_SSLMODE",
		"db.max_open":                    "FONDOS_DB_MAX_OPEN",
		"db.max_idle":                    "FONDOS_DB_MAX_IDLE",
		"import.record_type":             "FONDOS_IMPORT_RECORD_TYPE",
		"import.sheet":                   "FONDOS_IMPORT_SHEET",
		"import.conflict_key":            "FONDOS_IMPORT_CONFLICT_KEY",
		"import.period":                  "FONDOS_IMPORT_PERIOD",
		"import.batch_size":              "FONDOS_IMPORT_BATCH_SIZE",
		"import.progress_every":          "FONDOS_IMPORT_PROGRESS_EVERY",
		"import.reset":                   "FONDOS_IMPORT_RESET",
		"import.dry_run":                 "FONDOS_IMPORT_DRY_RUN",
		"import.expected_count":          "FONDOS_IMPORT_EXPECTED_COUNT",
		"import.issues_csv":              "FONDOS_IMPORT_ISSUES_CSV",
		"import.notify_to":               "FONDOS_IMPORT_NOTIFY_TO",
		"catalog.auto_create":            "FONDOS_CATALOG_AUTO_CREATE",
		"catalog.no_auto_create":         "FONDOS_CATALOG_NO_AUTO_CREATE",
		"catalog.numeric_passthrough":    "FONDOS_CATALOG_NUMERIC_PASSTHROUGH",
		"catalog.no_numeric_passthrough": "FONDOS_CATALOG_NO_NUMERIC_PASSTHROUGH",
		"s3.region":                      "FONDOS_S3_REGION",
		"s3.bucket":                      "FONDOS_S3_BUCKET",
		"s3.endpoint":                    "FONDOS_S3_ENDPOINT",
		"s3.access_key":                  "FONDOS_S3_ACCESS_KEY",
		"s3.secret_key":                  "FONDOS_S3_SECRET_KEY",
		"s3.reports_prefix":              "FONDOS_S3_REPORTS_PREFIX",
		"email.provider":                 "FONDOS_EMAIL_PROVIDER",
		"email.region":                   "FONDOS_EMAIL_REGION",
		"email.from_address":             "FONDOS_EMAIL_FROM_ADDRESS",
		"email.from_name":                "FONDOS_EMAIL_FROM_NAME",
		"log.level":                      "FONDOS_LOG_LEVEL",
		"log.format":                     "FONDOS_LOG_FORMAT",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}
	cfg.DB = DBConfig{
		URL:      v.GetString("db.url"),
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.Import = ImportConfig{
		RecordType:    v.GetString("import.record_type"),
		Sheet:         v.GetString("import.sheet"),
		ConflictKey:   v.GetString("import.conflict_key"),
		Period:        v.GetInt("import.period"),
		BatchSize:     ClampBatchSize(v.GetInt("import.batch_size")),
		ProgressEvery: v.GetInt("import.progress_every"),
		Reset:         v.GetBool("import.reset"),
		DryRun:        v.GetBool("import.dry_run"),
		ExpectedCount: v.GetInt("import.expected_count"),
		IssuesCSV:     v.GetString("import.issues_csv"),
		NotifyTo:      splitList(v.GetString("import.notify_to")),
	}
	cfg.Catalog = CatalogConfig{
		AutoCreate:           splitList(v.GetString("catalog.auto_create")),
		NoAutoCreate:         splitList(v.GetString("catalog.no_auto_create")),
		NumericPassthrough:   splitList(v.GetString("catalog.numeric_passthrough")),
		NoNumericPassthrough: splitList(v.GetString("catalog.no_numeric_passthrough")),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		ReportsPrefix: v.GetString("s3.reports_prefix"),
	}
	cfg.Email = EmailConfig{
		Provider:    v.GetString("email.provider"),
		Region:      v.GetString("email.region"),
		FromAddress: v.GetString("email.from_address"),
		FromName:    v.GetString("email.from_name"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	return cfg, nil
}

// Validate checks the settings a run cannot start without. Database
// credentials are only required when the run writes to the store.
func (c *Config) Validate() error {
	if _, err := c.RecordType(); err != nil {
		return err
	}
	if _, err := c.ConflictKey(); err != nil {
		return err
	}
	if _, err := c.CatalogPolicies(); err != nil {
		return err
	}
	if c.Import.DryRun {
		return nil
	}
	if c.DB.URL == "" && c.DB.Password == "" {
		return fmt.Errorf("%w: set FONDOS_DB_URL or FONDOS_DB_PASSWORD", domain.ErrMissingCredentials)
	}
	return nil
}

// RecordType returns the configured record type.
func (c *Config) RecordType() (domain.RecordType, error) {
	rt := domain.RecordType(strings.ToLower(strings.TrimSpace(c.Import.RecordType)))
	if _, err := rt.Table(); err != nil {
		return "", err
	}
	return rt, nil
}

// ConflictKey returns the configured upsert key.
func (c *Config) ConflictKey() (domain.ConflictKey, error) {
	k := domain.ConflictKey(strings.ToLower(strings.TrimSpace(c.Import.ConflictKey)))
	if _, err := k.Column(); err != nil {
		return "", err
	}
	return k, nil
}

// PolicyOverride is a configured change to one dimension's policy. Nil
// fields keep the default.
type PolicyOverride struct {
	AutoCreate         *bool
	NumericPassthrough *bool
}

// CatalogPolicies parses the catalog overrides into per-dimension changes.
func (c *Config) CatalogPolicies() (map[domain.Dimension]PolicyOverride, error) {
	out := make(map[domain.Dimension]PolicyOverride)
	set := func(names []string, apply func(*PolicyOverride)) error {
		for _, name := range names {
			dim, err := domain.ParseDimension(strings.ToLower(name))
			if err != nil {
				return err
			}
			o := out[dim]
			apply(&o)
			out[dim] = o
		}
		return nil
	}
	yes, no := true, false
	if err := set(c.Catalog.AutoCreate, func(o *PolicyOverride) { o.AutoCreate = &yes }); err != nil {
		return nil, err
	}
	if err := set(c.Catalog.NoAutoCreate, func(o *PolicyOverride) { o.AutoCreate = &no }); err != nil {
		return nil, err
	}
	if err := set(c.Catalog.NumericPassthrough, func(o *PolicyOverride) { o.NumericPassthrough = &yes }); err != nil {
		return nil, err
	}
	if err := set(c.Catalog.NoNumericPassthrough, func(o *PolicyOverride) { o.NumericPassthrough = &no }); err != nil {
		return nil, err
	}
	return out, nil
}

// ClampBatchSize keeps n within [MinBatchSize, MaxBatchSize]. Zero or
// negative values select the default.
func ClampBatchSize(n int) int {
	switch {
	case n <= 0:
		return DefaultBatchSize
	case n < MinBatchSize:
		return MinBatchSize
	case n > MaxBatchSize:
		return MaxBatchSize
	default:
		return n
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
