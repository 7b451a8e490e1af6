// Package config loads the service configuration: an optional YAML file,
// then a .env file, then process environment overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gopkg.in/yaml.v3"

	store "github.com/phillip/campus-events-go/store"
)

type MailConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
	From   string `yaml:"from"`
	ToName string `yaml:"to_name"`
}

type CloudinaryConfig struct {
	CloudName string `yaml:"cloud_name"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Folder    string `yaml:"folder"`
}

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	// Store selects the document store backend: "mongo" or "memory".
	Store    string `yaml:"store"`
	MongoURI string `yaml:"mongo_uri"`
	DBName   string `yaml:"db_name"`

	JWTSecret  string        `yaml:"jwt_secret"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	VerifyTTL  time.Duration `yaml:"verify_ttl"`
	ResetTTL   time.Duration `yaml:"reset_ttl"`

	AllowedDomains []string `yaml:"allowed_domains"`
	SchoolDomains  []string `yaml:"school_domains"`

	// CleanupCron is the schedule of the expired-event cleanup and
	// bookmark prune job.
	CleanupCron    string        `yaml:"cleanup_cron"`
	SessionIdleTTL time.Duration `yaml:"session_idle_ttl"`

	CORSOrigins []string `yaml:"cors_origins"`
	BaseURL     string   `yaml:"base_url"`
	// AuthRatePerMinute caps auth requests per client IP.
	AuthRatePerMinute int `yaml:"auth_rate_per_minute"`

	Mail       MailConfig       `yaml:"mail"`
	Cloudinary CloudinaryConfig `yaml:"cloudinary"`

	MongoClient *mongo.Client `yaml:"-"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:              "8080",
		LogLevel:          "info",
		Store:             "mongo",
		MongoURI:          "mongodb://localhost:27017",
		DBName:            "campus_events",
		SessionTTL:        12 * time.Hour,
		VerifyTTL:         24 * time.Hour,
		ResetTTL:          time.Hour,
		AllowedDomains:    []string{"uta.edu", "mavs.uta.edu"},
		SchoolDomains:     []string{"uta.edu", "mavs.uta.edu"},
		CleanupCron:       "*/15 * * * *",
		SessionIdleTTL:    24 * time.Hour,
		CORSOrigins:       []string{"http://localhost:5173"},
		BaseURL:           "http://localhost:8080",
		AuthRatePerMinute: 20,
		Mail:              MailConfig{ToName: "User"},
		Cloudinary:        CloudinaryConfig{Folder: "events"},
	}
}

// Normalize fills zero values with defaults so partial files still work.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Port == "" {
		c.Port = d.Port
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	switch c.Store {
	case "mongo", "memory":
	default:
		c.Store = d.Store
	}
	if c.MongoURI == "" {
		c.MongoURI = d.MongoURI
	}
	if c.DBName == "" {
		c.DBName = d.DBName
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = d.SessionTTL
	}
	if c.VerifyTTL <= 0 {
		c.VerifyTTL = d.VerifyTTL
	}
	if c.ResetTTL <= 0 {
		c.ResetTTL = d.ResetTTL
	}
	if c.AllowedDomains == nil {
		c.AllowedDomains = d.AllowedDomains
	}
	if c.SchoolDomains == nil {
		c.SchoolDomains = d.SchoolDomains
	}
	if c.CleanupCron == "" {
		c.CleanupCron = d.CleanupCron
	}
	if c.SessionIdleTTL <= 0 {
		c.SessionIdleTTL = d.SessionIdleTTL
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = d.CORSOrigins
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.AuthRatePerMinute <= 0 {
		c.AuthRatePerMinute = d.AuthRatePerMinute
	}
	if c.Mail.ToName == "" {
		c.Mail.ToName = d.Mail.ToName
	}
	if c.Cloudinary.Folder == "" {
		c.Cloudinary.Folder = d.Cloudinary.Folder
	}
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be set to at least 16 characters")
	}
	return nil
}

// Load reads the YAML file at path (a missing file yields the defaults),
// then .env and the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			cfg = &Config{}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("STORE", &c.Store)
	str("MONGO_URI", &c.MongoURI)
	str("DB_NAME", &c.DBName)
	str("JWT_SECRET", &c.JWTSecret)
	dur("SESSION_TTL", &c.SessionTTL)
	dur("VERIFY_TTL", &c.VerifyTTL)
	dur("RESET_TTL", &c.ResetTTL)
	list("ALLOWED_DOMAINS", &c.AllowedDomains)
	list("SCHOOL_DOMAINS", &c.SchoolDomains)
	str("CLEANUP_CRON", &c.CleanupCron)
	dur("SESSION_IDLE_TTL", &c.SessionIdleTTL)
	list("CORS_ORIGINS", &c.CORSOrigins)
	str("BASE_URL", &c.BaseURL)
	if v, ok := lookup("AUTH_RATE_PER_MINUTE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("AUTH_RATE_PER_MINUTE: %w", err))
		} else {
			c.AuthRatePerMinute = n
		}
	}

	str("ZEPTO_API_URL", &c.Mail.APIURL)
	str("ZEPTO_API_KEY", &c.Mail.APIKey)
	str("EMAIL_FROM", &c.Mail.From)
	str("EMAIL_TO_NAME", &c.Mail.ToName)

	str("CLOUDINARY_CLOUD_NAME", &c.Cloudinary.CloudName)
	str("CLOUDINARY_API_KEY", &c.Cloudinary.APIKey)
	str("CLOUDINARY_API_SECRET", &c.Cloudinary.APISecret)
	str("CLOUDINARY_FOLDER", &c.Cloudinary.Folder)

	return errors.Join(errs...)
}

// MailConfigured reports whether outbound email can be sent.
func (c *Config) MailConfigured() bool {
	return c.Mail.APIURL != "" && c.Mail.APIKey != "" && c.Mail.From != ""
}

func (c *Config) CloudinaryConfigured() bool {
	return c.Cloudinary.CloudName != "" && c.Cloudinary.APIKey != "" && c.Cloudinary.APISecret != ""
}

// Connect opens the Mongo client with the instant-normalizing registry and
// checks the deployment is reachable.
func (c *Config) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(c.MongoURI).
		SetRegistry(store.Registry()))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("mongo ping: %w", err)
	}
	c.MongoClient = client
	return nil
}

func (c *Config) Database() *mongo.Database {
	return c.MongoClient.Database(c.DBName)
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
