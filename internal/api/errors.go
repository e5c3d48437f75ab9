package api

// APIError is the body of every error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeLocked        = "locked"
	ErrCodeLLMDisabled   = "llm_disabled"
	ErrCodeUpstream      = "llm_unavailable"
	ErrCodeUnreadable    = "evidence_unreadable"
	ErrCodeInternalError = "internal_error"
)

func NotFoundError(resource string) APIError {
	return APIError{Code: ErrCodeNotFound, Message: resource + " not found"}
}

func BadRequestError(message string) APIError {
	return APIError{Code: ErrCodeBadRequest, Message: message}
}

func LockedError() APIError {
	return APIError{Code: ErrCodeLocked, Message: "ledger is encrypted; start the server with the passphrase"}
}

func InternalError() APIError {
	return APIError{Code: ErrCodeInternalError, Message: "an internal error occurred"}
}

func LLMDisabledError() APIError {
	return APIError{Code: ErrCodeLLMDisabled, Message: "alert explanations are disabled; set llm.enabled"}
}

func UpstreamError() APIError {
	return APIError{Code: ErrCodeUpstream, Message: "the model server could not explain this alert"}
}

func UnreadableError() APIError {
	return APIError{Code: ErrCodeUnreadable, Message: "alert evidence could not be read"}
}
