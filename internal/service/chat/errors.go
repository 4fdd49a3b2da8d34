package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies a flow failure
type ErrorKind string

const (
	KindConfiguration      ErrorKind = "ConfigurationError"
	KindQuotaExceeded      ErrorKind = "QuotaExceeded"
	KindProviderInvocation ErrorKind = "ProviderInvocationError"
	KindMetering           ErrorKind = "MeteringFailure"
	KindStorageUpload      ErrorKind = "StorageUploadFailure"
	KindCollection         ErrorKind = "CollectionMaintenanceFailure"
	KindInternal           ErrorKind = "InternalError"
)

var (
	ErrConfiguration      = errors.New("invalid AI configuration")
	ErrQuotaExceeded      = errors.New("insufficient points available")
	ErrProviderInvocation = errors.New("provider invocation failed")
	ErrMetering           = errors.New("token metering failed")
	ErrStorageUpload      = errors.New("storage upload failed")
	ErrCollection         = errors.New("document collection unavailable")
	ErrInternal           = errors.New("internal error")
)

var sentinels = map[ErrorKind]error{
	KindConfiguration:      ErrConfiguration,
	KindQuotaExceeded:      ErrQuotaExceeded,
	KindProviderInvocation: ErrProviderInvocation,
	KindMetering:           ErrMetering,
	KindStorageUpload:      ErrStorageUpload,
	KindCollection:         ErrCollection,
	KindInternal:           ErrInternal,
}

const genericFailureMessage = "An error occurred while processing your request"

// Trailer markers appended in-band to a response
const (
	PointsMarker     = "\n\n[POINTS]"
	OutputTimeMarker = "\n\n[OUTPUT_TIME]"
	ErrorMarker      = "\n\n[ERROR]"
)

// FlowError is a failure surfaced to the caller as an [ERROR] payload
type FlowError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Details any
	Err     error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind
func (e *FlowError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// QuotaDetails explains a rejected request
type QuotaDetails struct {
	EstimatedPoints float64 `json:"estimated_points"`
	AvailablePoints float64 `json:"available_points"`
	PointsUsed      float64 `json:"points_used"`
}

type errorPayload struct {
	Error   bool   `json:"error"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Details any    `json:"details"`
}

// Payload renders the error as the JSON object carried by the [ERROR] trailer
func (e *FlowError) Payload() string {
	details := e.Details
	if details == nil && e.Err != nil {
		details = e.Err.Error()
	}

	body, err := json.Marshal(errorPayload{
		Error:   true,
		Status:  e.Status,
		Message: e.Message,
		Details: details,
	})
	if err != nil {
		body, _ = json.Marshal(errorPayload{Error: true, Status: e.Status, Message: e.Message, Details: fmt.Sprint(details)})
	}
	return string(body)
}

func configurationError(modelID string, err error) *FlowError {
	if err == nil {
		err = fmt.Errorf("no configuration for model %q", modelID)
	}
	return &FlowError{Kind: KindConfiguration, Status: http.StatusBadRequest, Message: "Invalid AI configuration", Err: err}
}

func quotaExceeded(details QuotaDetails) *FlowError {
	return &FlowError{Kind: KindQuotaExceeded, Status: http.StatusTooManyRequests, Message: "Insufficient points available", Details: details}
}

func providerError(err error) *FlowError {
	return &FlowError{Kind: KindProviderInvocation, Status: http.StatusInternalServerError, Message: genericFailureMessage, Err: err}
}

func storageError(err error) *FlowError {
	return &FlowError{Kind: KindStorageUpload, Status: http.StatusInternalServerError, Message: genericFailureMessage, Err: err}
}

func collectionError(err error) *FlowError {
	return &FlowError{Kind: KindCollection, Status: http.StatusInternalServerError, Message: genericFailureMessage, Err: err}
}

func internalError(err error) *FlowError {
	return &FlowError{Kind: KindInternal, Status: http.StatusInternalServerError, Message: genericFailureMessage, Err: err}
}

// AsFlowError returns err as a FlowError, classifying unknown errors as internal
func AsFlowError(err error) *FlowError {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}
	return internalError(err)
}

func isCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

// PointsTrailer renders the points marker
func PointsTrailer(points float64) string {
	return PointsMarker + strconv.FormatFloat(points, 'f', -1, 64)
}

// OutputTimeTrailer renders the elapsed-time marker in seconds
func OutputTimeTrailer(elapsed time.Duration) string {
	return OutputTimeMarker + strconv.FormatFloat(elapsed.Seconds(), 'f', -1, 64)
}

// ErrorTrailer renders the error marker with its payload
func ErrorTrailer(err error) string {
	return ErrorMarker + AsFlowError(err).Payload()
}
