// Package config reads the service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendSQLite = "sqlite"
	BackendTables = "tables"
)

type Config struct {
	StorageBackend          string
	StorageConnectionString string
	SQLitePath              string
	BoardsTable             string
	ColumnsTable            string
	TasksTable              string
	SubtasksTable           string
	EventsQueue             string

	RedisConnectionString string
	CacheTTL              time.Duration
	DeduperTTL            time.Duration

	MutationTimeout time.Duration
	EventWorkers    int
	EventBuffer     int

	Auth0Domain       string
	Auth0Audience     string
	LocalAuthSecret   string
	LocalAuthIssuer   string
	LocalAuthAudience string

	Debug   bool
	LogFile string
	Port    string
}

var defaults = map[string]any{
	"storage_backend":              BackendSQLite,
	"sqlite_path":                  "data/boards.db",
	"boards_table":                 "Boards",
	"columns_table":                "Columns",
	"tasks_table":                  "Tasks",
	"subtasks_table":               "Subtasks",
	"cache_ttl":                    5 * time.Minute,
	"deduper_ttl":                  24 * time.Hour,
	"mutation_timeout":             10 * time.Second,
	"event_workers":                4,
	"event_buffer":                 256,
	"functions_customhandler_port": "8080",
}

// New returns a viper instance bound to the environment with the service
// defaults applied.
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	return FromViper(New())
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		StorageBackend:          strings.ToLower(strings.TrimSpace(v.GetString("storage_backend"))),
		StorageConnectionString: v.GetString("storage_connection_string"),
		SQLitePath:              v.GetString("sqlite_path"),
		BoardsTable:             v.GetString("boards_table"),
		ColumnsTable:            v.GetString("columns_table"),
		TasksTable:              v.GetString("tasks_table"),
		SubtasksTable:           v.GetString("subtasks_table"),
		EventsQueue:             v.GetString("events_queue"),
		RedisConnectionString:   v.GetString("redis_connection_string"),
		CacheTTL:                v.GetDuration("cache_ttl"),
		DeduperTTL:              v.GetDuration("deduper_ttl"),
		MutationTimeout:         v.GetDuration("mutation_timeout"),
		EventWorkers:            v.GetInt("event_workers"),
		EventBuffer:             v.GetInt("event_buffer"),
		Auth0Domain:             v.GetString("auth0_domain"),
		Auth0Audience:           v.GetString("auth0_audience"),
		LocalAuthSecret:         v.GetString("local_auth_secret"),
		LocalAuthIssuer:         v.GetString("local_auth_issuer"),
		LocalAuthAudience:       v.GetString("local_auth_audience"),
		Debug:                   v.GetBool("debug"),
		LogFile:                 v.GetString("log_file"),
		Port:                    v.GetString("functions_customhandler_port"),
	}
	return cfg, cfg.Validate()
}

// Validate checks the storage settings. Auth is validated by the server
// since tools do not need it.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageBackend {
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	case BackendTables:
		if c.StorageConnectionString == "" {
			errs = append(errs, errors.New("STORAGE_CONNECTION_STRING is required for the tables backend"))
		}
		if c.BoardsTable == "" || c.ColumnsTable == "" || c.TasksTable == "" || c.SubtasksTable == "" {
			errs = append(errs, errors.New("table names must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.EventsQueue != "" && c.StorageConnectionString == "" {
		errs = append(errs, errors.New("EVENTS_QUEUE requires STORAGE_CONNECTION_STRING"))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("CACHE_TTL must not be negative"))
	}
	if c.DeduperTTL <= 0 {
		errs = append(errs, errors.New("DEDUPER_TTL must be positive"))
	}
	if c.MutationTimeout <= 0 {
		errs = append(errs, errors.New("MUTATION_TIMEOUT must be positive"))
	}
	if c.EventWorkers <= 0 || c.EventBuffer <= 0 {
		errs = append(errs, errors.New("EVENT_WORKERS and EVENT_BUFFER must be positive"))
	}
	return errors.Join(errs...)
}

// ValidateAuth checks that exactly one way of verifying tokens is configured.
func (c Config) ValidateAuth() error {
	auth0 := c.Auth0Domain != "" || c.Auth0Audience != ""
	local := c.LocalAuthSecret != ""
	switch {
	case auth0 && local:
		return errors.New("configure either AUTH0_* or LOCAL_AUTH_*, not both")
	case local:
		return nil
	case c.Auth0Domain == "" || c.Auth0Audience == "":
		return errors.New("missing Auth0 config")
	}
	return nil
}

// JWKSURL is the key set location of the Auth0 tenant.
func (c Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Auth0Domain)
}

// Auth0Issuer is the issuer claim Auth0 puts in its tokens.
func (c Config) Auth0Issuer() string {
	return "https://" + c.Auth0Domain + "/"
}
