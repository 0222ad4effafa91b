package relay

import "errors"

// Protocol-level rejection reasons. Sessions map these onto OK/NOTICE
// replies; none of them terminates a connection.
var (
	// ErrInvalidEvent marks a structural or temporal validation failure.
	ErrInvalidEvent = errors.New("invalid-event")

	// ErrExpiredEvent marks an event whose expiration tag already elapsed.
	ErrExpiredEvent = errors.New("expired")

	// ErrAuthRequired marks a write attempted without required authentication.
	ErrAuthRequired = errors.New("auth-required")

	// ErrTooLarge marks an event whose content exceeds the size limit.
	ErrTooLarge = errors.New("too-large")

	// ErrBlocked marks an event rejected by the moderation policy.
	ErrBlocked = errors.New("blocked")
)

// Reason returns the wire reason string for a rejection error, or
// "server-error" for anything outside the protocol taxonomy.
func Reason(err error) string {
	for _, sentinel := range []error{ErrInvalidEvent, ErrExpiredEvent, ErrAuthRequired, ErrTooLarge, ErrBlocked} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "server-error"
}
