package stakingsvc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/TxnLab/lsd/internal/lib/lsd"
)

var (
	ErrPoolNotFound      = errors.New("staking pool not found")
	ErrBelowMinimum      = errors.New("amount below staking pool minimum")
	ErrInsufficientStake = errors.New("insufficient stake")
	ErrRequestNotFound   = lsd.ErrExternalRequestNotFound
	ErrNotMatured        = errors.New("unstake request not matured")
)

// wire codes for the sentinels above
var errorCodes = map[string]error{
	"pool_not_found":     ErrPoolNotFound,
	"below_minimum":      ErrBelowMinimum,
	"insufficient_stake": ErrInsufficientStake,
	"request_not_found":  ErrRequestNotFound,
	"not_matured":        ErrNotMatured,
}

func codeFor(err error) string {
	for code, sentinel := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// StatusError is a non-2xx response from the staking service.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("staking service returned %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return errorCodes[e.Code]
}

// Temporary reports whether the call may succeed if repeated.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func isTemporary(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	// transport failures
	return true
}

// statusFor maps service errors onto the HTTP status the server answers with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrPoolNotFound), errors.Is(err, ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBelowMinimum), errors.Is(err, ErrInsufficientStake):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotMatured):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
