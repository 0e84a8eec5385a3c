package api

import (
	"crypto/subtle"
	"errors"
	"strings"

	"staybook/internal/config"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	userIDHeaderDefault   = "x-user-id"
	clientKeyUnknown      = "unknown"

	permWriteBookings    = "write:bookings"
	permReadBookings     = "read:bookings"
	permReadAvailability = "read:availability"
	permManageBookings   = "manage:bookings"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errUnknownKey         = errors.New("invalid api key")
	errBadExtra           = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
)

// clientCredentials are the header values a client presents on either transport.
type clientCredentials struct {
	apiKey string
	extra  string
}

// keyring resolves API keys to configured clients. Both transports share it.
type keyring struct {
	clients     map[string]config.APIClientKey
	keyHeader   string
	extraHeader string
	userHeader  string
}

func newKeyring(auth config.APIAuthConfig) *keyring {
	clients := make(map[string]config.APIClientKey, len(auth.APIKeys))
	for _, k := range auth.APIKeys {
		clients[k.Key] = k
	}
	return &keyring{
		clients:     clients,
		keyHeader:   headerName(auth.HeaderAPIKey, apiKeyHeaderDefault),
		extraHeader: headerName(auth.HeaderExtra, apiExtraHeaderDefault),
		userHeader:  headerName(auth.HeaderUserID, userIDHeaderDefault),
	}
}

func (k *keyring) authenticate(c clientCredentials) (config.APIClientKey, error) {
	if c.apiKey == "" || c.extra == "" {
		return config.APIClientKey{}, errMissingCredentials
	}
	client, ok := k.clients[c.apiKey]
	if !ok {
		return config.APIClientKey{}, errUnknownKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(c.extra)) != 1 {
		return config.APIClientKey{}, errBadExtra
	}
	return client, nil
}

func (k *keyring) authorize(client config.APIClientKey, permission string) error {
	if hasPermission(client, permission) {
		return nil
	}
	return errPermissionDenied
}

// hasPermission treats an empty permission list as allow-all.
func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

// limitKey buckets callers by API key, then by remote address.
func limitKey(apiKey, remote string) string {
	switch {
	case apiKey != "":
		return apiKey
	case remote != "":
		return remote
	default:
		return clientKeyUnknown
	}
}

func headerName(configured, fallback string) string {
	if h := strings.TrimSpace(strings.ToLower(configured)); h != "" {
		return h
	}
	return fallback
}
