package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// The API and workers run in EKS with DB and AWS settings injected as pod
// environment variables. The punch agent runs on the kiosk and usually reads
// a local .env file next to the binary.

type Config struct {
	DBHost           string `mapstructure:"DB_HOST"`
	DBPort           string `mapstructure:"DB_PORT"`
	DBUser           string `mapstructure:"DB_USER"`
	DBPassword       string `mapstructure:"DB_PASSWORD"`
	DBName           string `mapstructure:"DB_NAME"`
	ServerPort       string `mapstructure:"SERVER_PORT"`
	AWSRegion        string `mapstructure:"AWS_REGION"`
	LaborSQSQueueURL string `mapstructure:"LABOR_SQS_QUEUE_URL"`
	EmailSQSQueueURL string `mapstructure:"EMAIL_SQS_QUEUE_URL"`
	AWSEndpoint      string `mapstructure:"AWS_ENDPOINT"`
	LegacyAPIURL     string `mapstructure:"LEGACY_API_URL"`
	IsLocalDev       bool   `mapstructure:"IS_LOCAL_DEV"`
	OTELEndpoint     string `mapstructure:"OTEL_EXPORTER_ENDPOINT"`
	JWTSecret        string `mapstructure:"JWT_SECRET"`
	Timezone         string `mapstructure:"TIMEZONE"`
	EmailSender      string `mapstructure:"EMAIL_SENDER"`
	EmailDomain      string `mapstructure:"EMAIL_DOMAIN"`

	AgentConfig `mapstructure:",squash"`
}

// AgentConfig holds the settings of the offline punch agent.
type AgentConfig struct {
	DBPath        string        `mapstructure:"AGENT_DB_PATH"`
	ServerURL     string        `mapstructure:"AGENT_SERVER_URL"`
	DeviceID      string        `mapstructure:"AGENT_DEVICE_ID"`
	ListenAddr    string        `mapstructure:"AGENT_LISTEN_ADDR"`
	SyncInterval  time.Duration `mapstructure:"AGENT_SYNC_INTERVAL"`
	ProbeInterval time.Duration `mapstructure:"AGENT_PROBE_INTERVAL"`
	MaxPending    int           `mapstructure:"AGENT_MAX_PENDING"`
	RetainSynced  bool          `mapstructure:"AGENT_RETAIN_SYNCED"`
	RetentionDays int           `mapstructure:"AGENT_RETENTION_DAYS"`
	LeaseTTL      time.Duration `mapstructure:"AGENT_LEASE_TTL"`
}

var keys = map[string]any{
	"DB_HOST":                "db",
	"DB_PORT":                "5432",
	"DB_USER":                "user",
	"DB_PASSWORD":            "password",
	"DB_NAME":                "punchclock_db",
	"SERVER_PORT":            "8080",
	"AWS_REGION":             "us-east-1",
	"LABOR_SQS_QUEUE_URL":    "http://localstack:4566/000000000000/labor-queue",
	"EMAIL_SQS_QUEUE_URL":    "http://localstack:4566/000000000000/email-queue",
	"AWS_ENDPOINT":           "http://localstack:4566",
	"LEGACY_API_URL":         "http://localhost:8081/",
	"IS_LOCAL_DEV":           false,
	"OTEL_EXPORTER_ENDPOINT": "",
	"JWT_SECRET":             "change-me",
	"TIMEZONE":               "UTC",
	"EMAIL_SENDER":           "timeclock@punchclock-service.com",
	"EMAIL_DOMAIN":           "factory.com",
	"AGENT_DB_PATH":          "punches.db",
	"AGENT_SERVER_URL":       "http://localhost:8080",
	"AGENT_DEVICE_ID":        "kiosk-1",
	"AGENT_LISTEN_ADDR":      "127.0.0.1:8090",
	"AGENT_SYNC_INTERVAL":    "30s",
	"AGENT_PROBE_INTERVAL":   "10s",
	"AGENT_MAX_PENDING":      10000,
	"AGENT_RETAIN_SYNCED":    true,
	"AGENT_RETENTION_DAYS":   30,
	"AGENT_LEASE_TTL":        "2m",
}

// LoadConfig reads configuration from an optional .env file and environment variables.
func LoadConfig() (config Config, err error) {
	// A missing .env is the normal case in EKS.
	_ = godotenv.Load()

	v := viper.New()
	for k, def := range keys {
		v.SetDefault(k, def)
	}

	// Read in environment variables that match the keys.
	v.AutomaticEnv()

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unmarshal config: %w", err)
	}
	return config, nil
}

// Location resolves TIMEZONE, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
