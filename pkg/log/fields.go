package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldURL       = "url"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID   = "user_id"
	FieldUsername = "username"

	// Service
	FieldService = "service"

	// Cache
	FieldCacheKey = "cache_key"

	// Chat
	FieldLocalID     = "local_id"
	FieldMessageID   = "message_id"
	FieldDestination = "destination"
	FieldState       = "state"
	FieldAttempt     = "attempt"
)

// Log types
const (
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
