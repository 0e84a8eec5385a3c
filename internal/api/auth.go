package api

import (
	"context"
	"strconv"
	"strings"

	"staybook/internal/config"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const healthMethodPrefix = "/grpc.health.v1.Health/"

// methodPermissions lists what each reservation RPC demands of the API key.
var methodPermissions = map[string]string{
	methodCreateBooking:   permWriteBookings,
	methodCancelBooking:   permWriteBookings,
	methodUpdateStatus:    permManageBookings,
	methodGetAvailability: permReadAvailability,
}

// AuthInterceptor enforces API keys, method permissions and the shared rate
// limit on gRPC calls. Health checks pass through untouched.
type AuthInterceptor struct {
	cfg     *config.APIConfig
	keys    *keyring
	limiter *RateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig, limiter *RateLimiter) *AuthInterceptor {
	return &AuthInterceptor{
		cfg:     cfg,
		keys:    newKeyring(cfg.Auth),
		limiter: limiter,
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !a.cfg.Enabled || strings.HasPrefix(info.FullMethod, healthMethodPrefix) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		creds := clientCredentials{
			apiKey: firstValue(md, a.keys.keyHeader),
			extra:  firstValue(md, a.keys.extraHeader),
		}

		if a.cfg.Auth.Enabled {
			client, err := a.keys.authenticate(creds)
			if err != nil {
				return nil, status.Error(codes.Unauthenticated, err.Error())
			}
			if err := a.keys.authorize(client, methodPermissions[info.FullMethod]); err != nil {
				return nil, status.Error(codes.PermissionDenied, err.Error())
			}
		}

		if !a.limiter.Allow(limitKey(creds.apiKey, peerAddr(ctx))) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// userIDFromMetadata reads the gateway-supplied user id. Zero means absent or malformed.
func userIDFromMetadata(ctx context.Context, header string) int64 {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0
	}
	return parseUserID(firstValue(md, headerName(header, userIDHeaderDefault)))
}

func parseUserID(raw string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func firstValue(md metadata.MD, key string) string {
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
