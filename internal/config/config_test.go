package config

import (
	"os"
	"path/filepath"
	"testing"

	"staybook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("STAYBOOK_DB_PATH", "data/test.db")
	yamlContent := `
app:
  name: staybook
database:
  path: "${STAYBOOK_DB_PATH}"
booking:
  fee_rate: 0.12
api:
  auth:
    api_keys:
      - key: k1
        extra: e1
        name: gateway
        permissions: ["write:bookings"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/test.db", cfg.Database.Path)
	assert.Equal(t, 0.12, cfg.Booking.Fee())
	assert.Equal(t, models.DefaultCancellationCutoffDays, cfg.Booking.Cutoff())
	require.Len(t, cfg.API.Auth.APIKeys, 1)
	assert.Equal(t, "gateway", cfg.API.Auth.APIKeys[0].Name)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid sqlite",
			cfg:     Config{Database: DatabaseConfig{Driver: "sqlite", Path: "path"}},
			wantErr: false,
		},
		{
			name:    "memory needs no path",
			cfg:     Config{Database: DatabaseConfig{Driver: "memory"}},
			wantErr: false,
		},
		{
			name:    "missing path",
			cfg:     Config{Database: DatabaseConfig{Driver: "sqlite"}},
			wantErr: true,
		},
		{
			name:    "unknown driver",
			cfg:     Config{Database: DatabaseConfig{Driver: "postgres", Path: "x"}},
			wantErr: true,
		},
		{
			name: "fee rate out of range",
			cfg: Config{
				Database: DatabaseConfig{Driver: "memory"},
				Booking:  BookingConfig{FeeRate: ptr(1.5)},
			},
			wantErr: true,
		},
		{
			name: "empty api key",
			cfg: Config{
				Database: DatabaseConfig{Driver: "memory"},
				API:      APIConfig{Auth: APIAuthConfig{APIKeys: []APIClientKey{{Name: "broken"}}}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-user-id", cfg.API.Auth.HeaderUserID)
	assert.Equal(t, models.DefaultFeeRate, cfg.Booking.Fee())
	assert.Equal(t, models.DefaultCancellationCutoffDays, cfg.Booking.Cutoff())
	assert.Equal(t, models.DefaultAvailabilityHorizonDays, cfg.Booking.AvailabilityHorizonDays)
	assert.Equal(t, models.DefaultBookingRateLimit, cfg.Booking.RateLimitPerWindow)
	assert.Equal(t, "Bookings", cfg.Google.LedgerSheetName)
}

func TestValidatePropertySeeds(t *testing.T) {
	valid := PropertySeed{ID: 1, Name: "Loft", PricePerNight: 25000, MaxGuests: 2, NumberOfUnits: 1}

	tests := []struct {
		name    string
		seeds   []PropertySeed
		wantErr bool
	}{
		{"Valid", []PropertySeed{valid, {ID: 2, Name: "Cabin", PricePerNight: 1, MaxGuests: 1}}, false},
		{"DuplicateID", []PropertySeed{valid, valid}, true},
		{"ZeroID", []PropertySeed{{Name: "x", PricePerNight: 1, MaxGuests: 1}}, true},
		{"ZeroPrice", []PropertySeed{{ID: 3, PricePerNight: 0, MaxGuests: 1}}, true},
		{"ZeroGuests", []PropertySeed{{ID: 3, PricePerNight: 1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePropertySeeds(tt.seeds)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePropertySeeds() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPropertySeed_Availability(t *testing.T) {
	seed := PropertySeed{ID: 1, PricePerNight: 1, MaxGuests: 1}
	seed.Availability = []WindowSeed{{Start: "2026-01-10", End: "2026-01-05"}}
	assert.Error(t, ValidatePropertySeeds([]PropertySeed{seed}))

	seed.Availability[0].End = "2026-02-01"
	require.NoError(t, ValidatePropertySeeds([]PropertySeed{seed}))

	p := seed.ToProperty()
	require.Len(t, p.Availability, 1)
	assert.Equal(t, 22, p.Availability[0].Nights())
}

func ptr[T any](v T) *T { return &v }

func TestLoadConfig_ZeroFeeAndCutoffKept(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
database:
  driver: memory
booking:
  fee_rate: 0
  cancellation_cutoff_days: 0
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg.Booking.FeeRate)
	require.NotNil(t, cfg.Booking.CancellationCutoffDays)
	assert.Equal(t, 0.0, cfg.Booking.Fee())
	assert.Equal(t, 0, cfg.Booking.Cutoff())
}

func TestBookingConfig_UnsetUsesDefaults(t *testing.T) {
	var b BookingConfig
	assert.Equal(t, models.DefaultFeeRate, b.Fee())
	assert.Equal(t, models.DefaultCancellationCutoffDays, b.Cutoff())

	b.FeeRate = ptr(0.25)
	b.CancellationCutoffDays = ptr(7)
	assert.Equal(t, 0.25, b.Fee())
	assert.Equal(t, 7, b.Cutoff())
}

func TestValidateConfig_NegativeCutoff(t *testing.T) {
	cfg := Config{
		Database: DatabaseConfig{Driver: "memory"},
		Booking:  BookingConfig{CancellationCutoffDays: ptr(-1)},
	}
	assert.Error(t, cfg.Validate())
}
