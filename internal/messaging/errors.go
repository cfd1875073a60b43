package messaging

import "errors"

// Local refusals. None of these reach the gateway.
var (
	ErrNotAuthenticated    = errors.New("messaging: not authenticated")
	ErrNoConversation      = errors.New("messaging: no conversation selected")
	ErrUnknownConversation = errors.New("messaging: conversation not visible")
	ErrUnknownMessage      = errors.New("messaging: message not in the current conversation")
	ErrNotSender           = errors.New("messaging: only the sender may change this message")
	ErrNotEditable         = errors.New("messaging: only text messages can be edited")
	ErrInvalidKind         = errors.New("messaging: unknown message type")
	ErrEmptyContent        = errors.New("messaging: nothing to send")
	ErrTooLarge            = errors.New("messaging: file is too large, max 5MB")
	ErrUploadInFlight      = errors.New("messaging: an upload is already in progress")
	ErrInvalidTransition   = errors.New("messaging: invalid recording transition")
)

// GatewayError is a failed remote call. It is never retried.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return "messaging: " + e.Op + ": " + e.Err.Error() }
func (e *GatewayError) Unwrap() error { return e.Err }

// DeviceError is a failure of the audio input device, e.g. a denied
// microphone permission.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string { return "messaging: microphone: " + e.Err.Error() }
func (e *DeviceError) Unwrap() error { return e.Err }
