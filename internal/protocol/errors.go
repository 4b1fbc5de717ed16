package protocol

// Error codes carried by ACK messages and ORDER_RESULT events.
const (
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	ErrBadRequest    = "E_BAD_REQUEST"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrNoResource    = "E_NO_RESOURCE"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrConflict      = "E_CONFLICT"
	ErrInternal      = "E_INTERNAL"
)

// retryable marks codes whose order may succeed if sent again later
// unchanged: the queue drains, the core refills, the limiter refills.
var retryable = map[string]bool{
	ErrProtoBadRequest: false,
	ErrBadRequest:      false,
	ErrNoPermission:    false,
	ErrNoResource:      true,
	ErrInvalidTarget:   false,
	ErrRateLimit:       true,
	ErrConflict:        false,
	ErrInternal:        false,
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := retryable[code]
	return ok
}

// Retryable reports whether an order rejected with code is worth resending.
func Retryable(code string) bool { return retryable[code] }
