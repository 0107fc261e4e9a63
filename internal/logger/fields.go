package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields. These travel with the context through the pipeline.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldContentID = "content_id"
	FieldTenantID  = "tenant_id"
	FieldLanguage  = "language"
	FieldComponent = "component"
	FieldStage     = "stage"
)

// Metric fields. Used on Entry for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldBatch is the 1-based translation batch number
	FieldBatch = "batch"
)
