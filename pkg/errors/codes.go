package errors

import "net/http"

// ErrorCode is a typed identifier for a specific failure category.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes.
const (
	CodeOK                 ErrorCode = "OK"
	CodeUnknown            ErrorCode = "COMMON_000"
	CodeInternal           ErrorCode = "COMMON_001"
	CodeInvalidParam       ErrorCode = "COMMON_002"
	CodeNotFound           ErrorCode = "COMMON_003"
	CodeConflict           ErrorCode = "COMMON_004"
	CodeValidation         ErrorCode = "COMMON_005"
	CodeSerialization      ErrorCode = "COMMON_006"
	CodeDatabaseError      ErrorCode = "COMMON_007"
	CodeCacheError         ErrorCode = "COMMON_008"
	CodeMessageQueueError  ErrorCode = "COMMON_009"
	CodeServiceUnavailable ErrorCode = "COMMON_010"
)

// Extraction module error codes.
const (
	CodeEmptyDocument        ErrorCode = "RX_001"
	CodeInvalidDosePattern   ErrorCode = "RX_002"
	CodeUnsupportedNotation  ErrorCode = "RX_003"
	CodePrescriptionNotFound ErrorCode = "RX_004"
)

// Schedule module error codes.
const (
	CodeInvalidStartDate ErrorCode = "SCH_001"
	CodeInvalidDuration  ErrorCode = "SCH_002"
	CodeReminderNotFound ErrorCode = "SCH_003"
	CodeDispatchFailed   ErrorCode = "SCH_004"
)

// HTTPStatus maps an ErrorCode to the HTTP status used by the API layer.
// Codes without an explicit mapping resolve to 500.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeInvalidParam, CodeInvalidDosePattern, CodeUnsupportedNotation,
		CodeInvalidStartDate, CodeInvalidDuration, CodeEmptyDocument:
		return http.StatusBadRequest
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeNotFound, CodePrescriptionNotFound, CodeReminderNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
