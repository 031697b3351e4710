package errors

import sterrors "errors"

// Frame and link error taxonomy. All of these are non-fatal at runtime: the
// bridge logs the failure, counts it, and moves on to the next frame or send.
var (
	ErrShortBuffer     = sterrors.New("mculink: buffer shorter than declared frame")
	ErrPayloadTooLarge = sterrors.New("mculink: declared payload exceeds frame limit")
	ErrTopicUnknown    = sterrors.New("mculink: unknown topic id")
	ErrDecodeFailed    = sterrors.New("mculink: payload decode failed")
	ErrSendFailed      = sterrors.New("mculink: datagram send failed")
	ErrReceiveFailed   = sterrors.New("mculink: datagram receive failed")
)

// Startup errors. These are programming or configuration mistakes and abort
// initialisation before any I/O begins.
var (
	ErrDuplicateTopic  = sterrors.New("mculink: topic id already registered")
	ErrLinkClosed      = sterrors.New("mculink: link is closed")
	ErrBridgeRequired  = sterrors.New("mculink: bridge is required")
	ErrLinkRequired    = sterrors.New("mculink: link is required")
	ErrCodecRequired   = sterrors.New("mculink: topic codec requires encode and decode functions")
	ErrChannelRequired = sterrors.New("mculink: host channel name is required")
	ErrConfigRequired  = sterrors.New("mculink: config is required")
	ErrLoggerRequired  = sterrors.New("mculink: logger is required")
)

// ConfigValidationError wraps the joined validation failures of a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "mculink: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err as a ConfigValidationError. A nil err
// returns nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
