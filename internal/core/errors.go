package core

// Error codes for domain errors crossing the wire.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotAuthorized  = "not_authorized"
	ErrCodeNotInRoom      = "not_in_room"
	ErrCodeSendFailed     = "send_failed"
	ErrCodeMarkReadFailed = "mark_read_failed"
)

// CoreError wraps a stable code and human-readable message. Each error
// is scoped to the connection that caused it; it never propagates to
// unrelated connections.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
