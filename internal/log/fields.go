package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldBudgetID   = "budget_id"
	FieldPeriod     = "period"
	FieldDocPath    = "doc_path"
	FieldGeneration = "generation"
	FieldSeverity   = "severity"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentSession  = "session"
	ComponentStorage  = "storage"
	ComponentWorker   = "worker"
	ComponentSecurity = "security"
	ComponentTrace    = "trace"
	ComponentBackend  = "backend"
	ComponentNotify   = "notify"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpList      = "list"
	OpSubscribe = "subscribe"
	OpMigrate   = "migrate"
	OpResolve   = "resolve"
	OpSwitch    = "switch"
	OpArchive   = "archive"
	OpStartup   = "startup"
)
