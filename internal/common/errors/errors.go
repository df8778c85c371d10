// Package errors provides standardized error handling for the resolver and its BPMN job workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Resolution pipeline errors. Understanding, matching and planning codes are
// reported as warnings; only execution codes can fail a resolution.
const (
	ErrCodeLowConfidence       ErrorCode = "QUERY_UNDERSTANDING_LOW_CONFIDENCE"
	ErrCodeNoMatchFound        ErrorCode = "NO_MATCH_FOUND"
	ErrCodeSQLGenerationFailed ErrorCode = "SQL_GENERATION_FAILED"
	ErrCodeSQLExecutionFailed  ErrorCode = "SQL_EXECUTION_FAILED"
	ErrCodeSQLExecutionTimeout ErrorCode = "SQL_EXECUTION_TIMEOUT"
	ErrCodeExhaustedFallbacks  ErrorCode = "EXHAUSTED_FALLBACKS"
	ErrCodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
)

// Infrastructure errors.
const (
	ErrCodeDatabaseConnectionFailed      ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeSemanticSearchFailed          ErrorCode = "SEMANTIC_SEARCH_FAILED"
	ErrCodeElasticsearchConnectionFailed ErrorCode = "ELASTICSEARCH_CONNECTION_FAILED"
	ErrCodeMetadataUnavailable           ErrorCode = "METADATA_UNAVAILABLE"
	ErrCodeInvalidConfiguration          ErrorCode = "INVALID_CONFIGURATION"
	ErrCodeInvalidInput                  ErrorCode = "INVALID_INPUT"
	ErrCodeAlertPublishFailed            ErrorCode = "ALERT_PUBLISH_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// AsStandardError unwraps err looking for a *StandardError.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewLowConfidenceError reports a query the extractor could barely read.
func NewLowConfidenceError(score, threshold float64) *StandardError {
	return &StandardError{
		Code:      ErrCodeLowConfidence,
		Message:   "Query understanding confidence below threshold",
		Details:   fmt.Sprintf("confidence: %.2f, threshold: %.2f", score, threshold),
		Retryable: false,
		Metadata:  map[string]interface{}{"confidence": score},
		Timestamp: time.Now().UTC(),
	}
}

// NewNoMatchFoundError reports that no mentioned entity bound to the schema.
func NewNoMatchFoundError(entities []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoMatchFound,
		Message:   "No schema objects matched the query",
		Details:   fmt.Sprintf("entities: [%s]", strings.Join(entities, ", ")),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewSQLGenerationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSQLGenerationFailed,
		Message:   "Plan could not be rendered, using basic select",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSQLExecutionFailedError creates a retryable execution error for one attempt.
func NewSQLExecutionFailedError(strategy string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSQLExecutionFailed,
		Message:   "SQL execution error",
		Details:   fmt.Sprintf("strategy: %s, error: %s", strategy, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewSQLExecutionTimeoutError(strategy string, timeout time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeSQLExecutionTimeout,
		Message:   "SQL execution timeout",
		Details:   fmt.Sprintf("strategy: %s, timeout: %s", strategy, timeout),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewExhaustedFallbacksError is raised once every fallback strategy has failed.
func NewExhaustedFallbacksError(attempts int, lastErr string) *StandardError {
	return &StandardError{
		Code:      ErrCodeExhaustedFallbacks,
		Message:   "All fallback strategies failed",
		Details:   fmt.Sprintf("attempts: %d, lastError: %s", attempts, lastErr),
		Retryable: true,
		Metadata:  map[string]interface{}{"attempts": attempts},
		Timestamp: time.Now().UTC(),
	}
}

func NewValidationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "SQL validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSemanticSearchFailedError wraps an embedding store failure. The matcher
// logs it and carries on without semantic hits.
func NewSemanticSearchFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSemanticSearchFailed,
		Message:   "Semantic entity search failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewElasticsearchConnectionFailedError creates a retryable Elasticsearch connection error.
func NewElasticsearchConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeElasticsearchConnectionFailed,
		Message:   "Elasticsearch connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewMetadataUnavailableError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMetadataUnavailable,
		Message:   "Semantic metadata snapshot unavailable",
		Details:   fmt.Sprintf("source: %s, error: %s", source, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidConfiguration,
		Message:   "Invalid resolver configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidInputError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidInput,
		Message:   "Invalid input",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewAlertPublishFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlertPublishFailed,
		Message:   "Alert publish failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes modelled in the BPMN diagrams.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeLowConfidence:                 "QUERY_UNDERSTANDING_LOW_CONFIDENCE",
	ErrCodeNoMatchFound:                  "NO_MATCH_FOUND",
	ErrCodeSQLGenerationFailed:           "SQL_GENERATION_FAILED",
	ErrCodeSQLExecutionFailed:            "SQL_EXECUTION_FAILED",
	ErrCodeSQLExecutionTimeout:           "SQL_EXECUTION_TIMEOUT",
	ErrCodeExhaustedFallbacks:            "EXHAUSTED_FALLBACKS",
	ErrCodeValidationFailed:              "VALIDATION_FAILED",
	ErrCodeDatabaseConnectionFailed:      "DATABASE_CONNECTION_FAILED",
	ErrCodeSemanticSearchFailed:          "SEMANTIC_SEARCH_FAILED",
	ErrCodeElasticsearchConnectionFailed: "ELASTICSEARCH_CONNECTION_FAILED",
	ErrCodeMetadataUnavailable:           "METADATA_UNAVAILABLE",
	ErrCodeInvalidConfiguration:          "INVALID_CONFIGURATION",
	ErrCodeInvalidInput:                  "INVALID_INPUT",
	ErrCodeAlertPublishFailed:            "ALERT_PUBLISH_FAILED",
}

// GetRetryCount returns the recommended job retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeElasticsearchConnectionFailed,
		ErrCodeMetadataUnavailable,
		ErrCodeSQLExecutionFailed:
		return 3

	case ErrCodeSQLExecutionTimeout,
		ErrCodeSemanticSearchFailed,
		ErrCodeAlertPublishFailed:
		return 2

	case ErrCodeExhaustedFallbacks:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "UNDERSTANDING") || strings.Contains(codeStr, "MATCH"):
		return "UNDERSTANDING"
	case strings.HasPrefix(codeStr, "SQL_") || strings.Contains(codeStr, "FALLBACKS"):
		return "EXECUTION"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "ELASTICSEARCH") || strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "METADATA"):
		return "METADATA"
	case strings.Contains(codeStr, "ALERT"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
