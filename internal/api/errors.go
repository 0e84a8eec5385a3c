package api

import (
	"errors"
	"net/http"

	"staybook/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorBody is the JSON shape of every failed HTTP response.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Remaining *int   `json:"remaining,omitempty"`
}

// httpError translates a service error into a status code and a response body.
func httpError(err error) (int, errorBody) {
	var full *domain.FullyBookedError
	if errors.As(err, &full) {
		remaining := full.Remaining
		return http.StatusConflict, errorBody{Error: err.Error(), Code: "fully_booked", Remaining: &remaining}
	}

	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		return http.StatusNotFound, errorBody{Error: err.Error(), Code: nf.Entity + "_not_found"}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidDateRange):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_date_range"}
	case errors.Is(err, domain.ErrPastDate):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: "past_date"}
	case errors.Is(err, domain.ErrDateTooFar):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: "date_too_far"}
	case errors.Is(err, domain.ErrGuestLimitExceeded):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: "guest_limit_exceeded"}
	case errors.Is(err, domain.ErrInvalidGuestCount):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_guest_count"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: err.Error(), Code: "forbidden"}
	case errors.Is(err, domain.ErrPolicyViolation):
		return http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "cancellation_window"}
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_transition"}
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{Error: err.Error(), Code: "rate_limited"}
	case errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict, errorBody{Error: err.Error(), Code: "concurrent_modification"}
	case errors.Is(err, domain.ErrLockNotAcquired):
		return http.StatusServiceUnavailable, errorBody{Error: err.Error(), Code: "lock_timeout"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal server error", Code: "internal"}
	}
}

// grpcError is the gRPC counterpart of httpError.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var full *domain.FullyBookedError
	switch {
	case errors.As(err, &full):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, domain.ErrInvalidDateRange),
		errors.Is(err, domain.ErrPastDate),
		errors.Is(err, domain.ErrDateTooFar),
		errors.Is(err, domain.ErrGuestLimitExceeded),
		errors.Is(err, domain.ErrInvalidGuestCount):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, domain.ErrPolicyViolation),
		errors.Is(err, domain.ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, domain.ErrConcurrentModification):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, domain.ErrLockNotAcquired):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
