package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"staybook/internal/config"
	"staybook/internal/models"
	"staybook/internal/repository"
	"staybook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testHostID  = 500
	testGuestID = 42
)

var testToday = time.Date(2030, 6, 1, 15, 0, 0, 0, time.UTC)

type testEnv struct {
	svc      *service.ReservationService
	store    *repository.MemoryStore
	property *models.Property
}

func newTestEnv(t *testing.T, units int) *testEnv {
	t.Helper()
	store := repository.NewMemoryStore()
	logger := zerolog.New(io.Discard)
	svc := service.NewReservationService(store, nil, nil, nil, service.DefaultOptions(), &logger).
		WithClock(service.FixedClock{T: testToday})

	p := &models.Property{
		HostID:        testHostID,
		Name:          "Seaside Loft",
		PricePerNight: 25000,
		MaxGuests:     4,
		NumberOfUnits: units,
		Availability: []models.DateRange{models.NewDateRange(
			time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2031, 6, 1, 0, 0, 0, 0, time.UTC),
		)},
	}
	require.NoError(t, store.CreateProperty(context.Background(), p))
	return &testEnv{svc: svc, store: store, property: p}
}

func openConfig() *config.APIConfig {
	return &config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		GRPC:    config.APIGRPCConfig{Enabled: true},
	}
}

func authConfig() *config.APIConfig {
	cfg := openConfig()
	cfg.Auth = config.APIAuthConfig{
		Enabled: true,
		APIKeys: []config.APIClientKey{
			{Key: "guest-app", Extra: "s3cret", Permissions: []string{permWriteBookings, permReadBookings, permReadAvailability}},
			{Key: "host-app", Extra: "h0st", Permissions: []string{permManageBookings, permReadBookings}},
			{Key: "admin", Extra: "all"},
		},
	}
	return cfg
}

func newTestHTTP(t *testing.T, cfg *config.APIConfig, env *testEnv) *httptest.Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	srv := NewHTTPServer(cfg, env.svc, nil, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type requestOpt func(*http.Request)

func asUser(id string) requestOpt {
	return func(r *http.Request) { r.Header.Set("X-User-ID", id) }
}

func withKey(key, extra string) requestOpt {
	return func(r *http.Request) {
		r.Header.Set("X-API-Key", key)
		r.Header.Set("X-API-Extra", extra)
	}
}

func do(t *testing.T, method, url, body string, opts ...requestOpt) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
