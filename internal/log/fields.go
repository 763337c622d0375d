package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldQuery        = "query"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldUserAgent    = "user_agent"
	FieldReferer      = "referer"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldCategory     = "category"
	FieldGender       = "gender"
	FieldIncome       = "income"
	FieldMatched      = "matched_schemes"
	FieldStates       = "states"
	FieldEmpty        = "empty"
	FieldDatasetVer   = "dataset_version"
	FieldSchemeCount  = "scheme_count"
	FieldRegionCount  = "region_count"
	FieldSchemeSource = "scheme_source"
	FieldRegionSource = "region_source"
	FieldReloadReason = "reload_reason"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentExplorer  = "explorer"
	ComponentDataset   = "dataset"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSources   = "sources"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
	ComponentTemplate  = "template"
	ComponentRender    = "render"
)

// Operations defines standard operation names
const (
	OpRead     = "read"
	OpLoad     = "load"
	OpReload   = "reload"
	OpImport   = "import"
	OpExplore  = "explore"
	OpValidate = "validate"
	OpParse    = "parse"
	OpRender   = "render"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeInput         = "input_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithClientIP adds client IP field
func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithCriteria adds the applicant's selection
func (f LogFields) WithCriteria(category, gender, income string) LogFields {
	f[FieldCategory] = category
	f[FieldGender] = gender
	f[FieldIncome] = income
	return f
}

// WithOutcome adds pipeline result sizes
func (f LogFields) WithOutcome(matched, states int, empty bool) LogFields {
	f[FieldMatched] = matched
	f[FieldStates] = states
	f[FieldEmpty] = empty
	return f
}

// WithDataset adds dataset snapshot fields
func (f LogFields) WithDataset(version string, schemes, regions int) LogFields {
	f[FieldDatasetVer] = version
	f[FieldSchemeCount] = schemes
	f[FieldRegionCount] = regions
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// With adds an arbitrary field
func (f LogFields) With(key string, value any) LogFields {
	f[key] = value
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
