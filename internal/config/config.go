package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type RateLimitConfig struct {
	DefaultPerMinute int `yaml:"defaultPerMinute"`
}

// LockConfig controls the per-transaction action lock held in Redis
// while a status change is being applied.
type LockConfig struct {
	TTLMs int `yaml:"ttlMs"`
}

type WorkerConfig struct {
	PollIntervalMs int `yaml:"pollIntervalMs"`
}

// WorkflowConfig selects which downstream gating stages a transaction
// passes through after production completion.
type WorkflowConfig struct {
	QCRequired     bool `yaml:"qcRequired"`
	VerifyRequired bool `yaml:"verifyRequired"`
}

// ClockConfig names the location used to interpret the local-time
// timestamps exchanged with clients. No timezone travels on the wire.
type ClockConfig struct {
	Location string `yaml:"location"`
}

// RetentionConfig controls TTL-like deletion of audit events and closed
// transactions so that the database does not grow without bound.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
	AuditDays              int  `yaml:"auditDays"`
	ClosedTransactionDays  int  `yaml:"closedTransactionDays"`
}

type BootstrapEmployeeConfig struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

type BootstrapMachineConfig struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	WorkCenter  string `yaml:"workCenter"`
}

// BootstrapConfig seeds master data on startup.
type BootstrapConfig struct {
	Employees []BootstrapEmployeeConfig `yaml:"employees"`
	Machines  []BootstrapMachineConfig  `yaml:"machines"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Lock      LockConfig      `yaml:"lock"`
	Worker    WorkerConfig    `yaml:"worker"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Clock     ClockConfig     `yaml:"clock"`
	Retention RetentionConfig `yaml:"retention"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}
	cfg.applyDefaults()

	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Lock.TTLMs <= 0 {
		c.Lock.TTLMs = 5000
	}
	if c.Worker.PollIntervalMs <= 0 {
		c.Worker.PollIntervalMs = 10000
	}
	if c.Retention.CleanupIntervalMinutes <= 0 {
		c.Retention.CleanupIntervalMinutes = 60
	}
}

// Location resolves the configured clock location, falling back to the
// process local zone when unset or unknown.
func (c *Config) Location() *time.Location {
	if c == nil || c.Clock.Location == "" || c.Clock.Location == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Clock.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

// LockTTL returns the per-transaction lock TTL.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Lock.TTLMs) * time.Millisecond
}
