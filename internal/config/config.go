package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"staybook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Events     EventsConfig     `yaml:"events"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
	Worker     WorkerConfig     `yaml:"worker"`
}

// BookingConfig holds the booking rules. CancellationCutoffDays and FeeRate are
// pointers because 0 is a meaningful setting; nil means "use the default".
type BookingConfig struct {
	CancellationCutoffDays  *int     `yaml:"cancellation_cutoff_days"`
	FeeRate                 *float64 `yaml:"fee_rate"`
	AvailabilityHorizonDays int      `yaml:"availability_horizon_days"`
	MaxNights               int      `yaml:"max_nights"`
	MaxAdvanceDays          int      `yaml:"max_advance_days"`
	RateLimitPerWindow      int      `yaml:"rate_limit_per_window"`
	RateLimitWindow         int      `yaml:"rate_limit_window"`
	LockTTL                 int      `yaml:"lock_ttl"`
	LockWaitMillis          int      `yaml:"lock_wait_ms"`
}

// Cutoff returns the guest cancellation cutoff in days.
func (b BookingConfig) Cutoff() int {
	if b.CancellationCutoffDays == nil {
		return models.DefaultCancellationCutoffDays
	}
	return *b.CancellationCutoffDays
}

// Fee returns the service fee rate.
func (b BookingConfig) Fee() float64 {
	if b.FeeRate == nil {
		return models.DefaultFeeRate
	}
	return *b.FeeRate
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	HeaderUserID string         `yaml:"header_user_id"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite | memory
	Path   string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	LedgerSpreadsheetID   string `yaml:"ledger_spreadsheet_id"`
	LedgerSheetName       string `yaml:"ledger_sheet_name"`
}

type WorkerConfig struct {
	Enabled        bool    `yaml:"enabled"`
	PollInterval   int     `yaml:"poll_interval_ms"`
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelayMS int     `yaml:"initial_delay_ms"`
	MaxDelayMS     int     `yaml:"max_delay_ms"`
	BackoffFactor  float64 `yaml:"backoff_factor"`
}

// PropertySeed describes a property loaded from properties.yaml.
type PropertySeed struct {
	ID            int64  `yaml:"id"`
	HostID        int64  `yaml:"host_id"`
	Name          string `yaml:"name"`
	PricePerNight int64  `yaml:"price_per_night"`
	MaxGuests     int    `yaml:"max_guests"`
	NumberOfUnits int    `yaml:"number_of_units"`
	Availability  []WindowSeed `yaml:"availability"`
}

type WindowSeed struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен, но если он есть, он должен быть корректным
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if fee := c.Booking.Fee(); fee < 0 || fee > 1 {
		return fmt.Errorf("booking.fee_rate must be within [0, 1], got %v", fee)
	}
	if c.Booking.Cutoff() < 0 {
		return errors.New("booking.cancellation_cutoff_days must not be negative")
	}

	for _, k := range c.API.Auth.APIKeys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key %q has empty key", k.Name)
		}
	}
	return nil
}

// ValidatePropertySeeds checks ids and the positive-number constraints of every seed.
func ValidatePropertySeeds(seeds []PropertySeed) error {
	ids := make(map[int64]bool)
	for _, s := range seeds {
		if s.ID == 0 {
			return fmt.Errorf("property '%s' has invalid ID 0", s.Name)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate property ID found: %d", s.ID)
		}
		ids[s.ID] = true
		if s.PricePerNight <= 0 {
			return fmt.Errorf("property %d: price_per_night must be positive", s.ID)
		}
		if s.MaxGuests <= 0 {
			return fmt.Errorf("property %d: max_guests must be positive", s.ID)
		}
		if s.NumberOfUnits < 0 {
			return fmt.Errorf("property %d: number_of_units must be positive", s.ID)
		}
		for _, w := range s.Availability {
			start, err := models.ParseDay(w.Start)
			if err != nil {
				return fmt.Errorf("property %d: %w", s.ID, err)
			}
			end, err := models.ParseDay(w.End)
			if err != nil {
				return fmt.Errorf("property %d: %w", s.ID, err)
			}
			if !start.Before(end) {
				return fmt.Errorf("property %d: availability window %s..%s is empty", s.ID, w.Start, w.End)
			}
		}
	}
	return nil
}

// ToProperty converts a validated seed into a property.
func (s PropertySeed) ToProperty() *models.Property {
	p := &models.Property{
		ID:            s.ID,
		HostID:        s.HostID,
		Name:          s.Name,
		PricePerNight: s.PricePerNight,
		MaxGuests:     s.MaxGuests,
		NumberOfUnits: s.NumberOfUnits,
	}
	for _, w := range s.Availability {
		start, errStart := models.ParseDay(w.Start)
		end, errEnd := models.ParseDay(w.End)
		if errStart != nil || errEnd != nil {
			continue
		}
		p.Availability = append(p.Availability, models.DateRange{Start: start, End: end})
	}
	return p
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.Auth.HeaderUserID == "" {
		c.API.Auth.HeaderUserID = "x-user-id"
	}

	// Booking defaults
	if c.Booking.CancellationCutoffDays == nil {
		cutoff := models.DefaultCancellationCutoffDays
		c.Booking.CancellationCutoffDays = &cutoff
	}
	if c.Booking.FeeRate == nil {
		fee := models.DefaultFeeRate
		c.Booking.FeeRate = &fee
	}
	if c.Booking.AvailabilityHorizonDays == 0 {
		c.Booking.AvailabilityHorizonDays = models.DefaultAvailabilityHorizonDays
	}
	if c.Booking.MaxNights == 0 {
		c.Booking.MaxNights = models.DefaultMaxNights
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.RateLimitPerWindow == 0 {
		c.Booking.RateLimitPerWindow = models.DefaultBookingRateLimit
	}
	if c.Booking.RateLimitWindow == 0 {
		c.Booking.RateLimitWindow = models.DefaultBookingRateWindow
	}
	if c.Booking.LockTTL == 0 {
		c.Booking.LockTTL = models.DefaultLockTTL
	}
	if c.Booking.LockWaitMillis == 0 {
		c.Booking.LockWaitMillis = 5000
	}

	if c.Events.Exchange == "" {
		c.Events.Exchange = "staybook.events"
	}
	if c.Google.LedgerSheetName == "" {
		c.Google.LedgerSheetName = "Bookings"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 2000
	}
}
