package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies deployment failures for callers.
type ErrorKind string

const (
	// ErrorKindConfiguration indicates missing credentials or invalid settings.
	// Raised before any side effect.
	ErrorKindConfiguration ErrorKind = "configuration"

	// ErrorKindClassification indicates the classifier failed or the category
	// has no deployable platform.
	ErrorKindClassification ErrorKind = "classification"

	// ErrorKindValidation indicates an invalid request or an admission denial.
	ErrorKindValidation ErrorKind = "validation"

	// ErrorKindProvisioning indicates a platform operation failed after
	// provisioning started. Rollback has been attempted.
	ErrorKindProvisioning ErrorKind = "provisioning"
)

// DeployError is the single error type returned by a deployment run.
type DeployError struct {
	// Kind is the failure classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable summary.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Stage is where the run failed.
	Stage Stage `json:"stage,omitempty"`

	// Platform is the platform whose operation failed, if any.
	Platform Platform `json:"platform,omitempty"`

	// Operation is the adapter operation that failed, if any.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`

	// RollbackAttempted is true once cleanup has run.
	RollbackAttempted bool `json:"rollbackAttempted"`

	// RollbackCompleted is true when every tracked resource was deleted.
	RollbackCompleted bool `json:"rollbackCompleted"`

	// Leftover lists resources that could not be deleted.
	Leftover []TrackedResource `json:"leftover,omitempty"`

	// State is the final run state.
	State RunState `json:"state,omitempty"`
}

// Error implements the error interface.
func (e *DeployError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Platform != "" && e.Operation != "" {
		fmt.Fprintf(&b, " (platform=%s, operation=%s)", e.Platform, e.Operation)
	} else if e.Platform != "" {
		fmt.Fprintf(&b, " (platform=%s)", e.Platform)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.RollbackAttempted {
		if e.RollbackCompleted {
			b.WriteString("; rollback completed")
		} else {
			labels := make([]string, 0, len(e.Leftover))
			for _, res := range e.Leftover {
				labels = append(labels, string(res.Platform)+" "+res.Label())
			}
			fmt.Fprintf(&b, "; rollback incomplete, manual cleanup required for: %s",
				strings.Join(labels, ", "))
		}
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *DeployError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *DeployError) Is(target error) bool {
	t, ok := target.(*DeployError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *DeployError {
	return &DeployError{
		Kind:    ErrorKindConfiguration,
		Message: message,
		Stage:   StageValidation,
		Err:     err,
	}
}

// NewClassificationError creates a new classification error.
func NewClassificationError(message string, err error) *DeployError {
	return &DeployError{
		Kind:    ErrorKindClassification,
		Message: message,
		Stage:   StageClassification,
		Err:     err,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *DeployError {
	return &DeployError{
		Kind:    ErrorKindValidation,
		Message: message,
		Stage:   StageValidation,
		Err:     err,
	}
}

// NewProvisioningError creates a new provisioning error for a failed
// adapter operation.
func NewProvisioningError(platform Platform, operation string, err error) *DeployError {
	return &DeployError{
		Kind:      ErrorKindProvisioning,
		Message:   fmt.Sprintf("%s stage failed", StageFor(platform)),
		Stage:     StageFor(platform),
		Platform:  platform,
		Operation: operation,
		Err:       err,
	}
}

// WithStage sets the stage on an error.
func (e *DeployError) WithStage(stage Stage) *DeployError {
	e.Stage = stage
	return e
}

// WithCode adds an error code to an error.
func (e *DeployError) WithCode(code string) *DeployError {
	e.Code = code
	return e
}

// WithPlatform adds platform context to an error.
func (e *DeployError) WithPlatform(p Platform) *DeployError {
	e.Platform = p
	return e
}

// kindOf extracts the kind from any error in the chain.
func kindOf(err error) (ErrorKind, bool) {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsConfiguration returns true if the error is a configuration error.
func IsConfiguration(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorKindConfiguration
}

// IsClassification returns true if the error is a classification error.
func IsClassification(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorKindClassification
}

// IsValidation returns true if the error is a validation error.
func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorKindValidation
}

// IsProvisioning returns true if the error is a provisioning error.
func IsProvisioning(err error) bool {
	k, ok := kindOf(err)
	return ok && k == ErrorKindProvisioning
}

// LeftoverResources returns the resources a failed run could not delete.
func LeftoverResources(err error) []TrackedResource {
	var e *DeployError
	if errors.As(err, &e) {
		return e.Leftover
	}
	return nil
}

// Common error codes.
const (
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeInvalidSource     = "INVALID_SOURCE"
	ErrCodeMissingCredential = "MISSING_CREDENTIAL"
	ErrCodeUnsupportedType   = "UNSUPPORTED_TYPE"
	ErrCodePolicyDenied      = "POLICY_DENIED"
	ErrCodeClassifierFailed  = "CLASSIFIER_FAILED"
	ErrCodeProviderFailed    = "PROVIDER_FAILED"
	ErrCodeCancelled         = "CANCELLED"
)
