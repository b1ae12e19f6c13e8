package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/cycle"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/screening"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/identity"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/middleware"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/patientcsv"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/service"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/session"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

type ImportErrorResponse struct {
	Error   string                `json:"error"`
	Code    string                `json:"code"`
	Columns []string              `json:"columns,omitempty"`
	Line    int                   `json:"line,omitempty"`
	Rows    []patientcsv.RowError `json:"rows,omitempty"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

// respondServiceError is the single translation point from service and
// domain errors to HTTP responses.
func respondServiceError(c *gin.Context, err error) {
	_ = c.Error(err)

	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	var missing *patientcsv.MissingColumnsError
	if errors.As(err, &missing) {
		c.JSON(http.StatusBadRequest, ImportErrorResponse{
			Error:   err.Error(),
			Code:    "MISSING_COLUMNS",
			Columns: missing.Columns,
		})
		return
	}

	var malformed *patientcsv.MalformedFileError
	if errors.As(err, &malformed) {
		c.JSON(http.StatusBadRequest, ImportErrorResponse{
			Error: err.Error(),
			Code:  "MALFORMED_CSV",
			Line:  malformed.Line,
		})
		return
	}

	var rowErrs patientcsv.RowErrors
	if errors.As(err, &rowErrs) {
		c.JSON(http.StatusUnprocessableEntity, ImportErrorResponse{
			Error: "import rejected: every row must be valid",
			Code:  "INVALID_ROWS",
			Rows:  rowErrs,
		})
		return
	}

	// Messages from the privileged functions are shown to the admin verbatim.
	var remoteErr *identity.RemoteError
	if errors.As(err, &remoteErr) {
		status := remoteErr.Status
		if status < http.StatusBadRequest || status >= http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		c.JSON(status, ErrorResponse{Error: remoteErr.Message, Code: "REMOTE_ERROR"})
		return
	}

	switch {
	case errors.Is(err, patientcsv.ErrNoDataRows):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "NO_DATA_ROWS"})

	case errors.Is(err, patient.ErrPatientNotFound),
		errors.Is(err, cycle.ErrCycleNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrProfileNotFound),
		errors.Is(err, screening.ErrRecordNotFound),
		errors.Is(err, service.ErrPreviewNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, patient.ErrPatientAlreadyExists),
		errors.Is(err, domain.ErrEmailTaken):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})

	case errors.Is(err, cycle.ErrCycleActive):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "CYCLE_ACTIVE"})

	case errors.Is(err, cycle.ErrNoActiveCycle):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "NO_ACTIVE_CYCLE"})

	case errors.Is(err, screening.ErrSectionBlocked):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "SECTION_BLOCKED"})

	case errors.Is(err, service.ErrNoSectionAssigned):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "NO_SECTION_ASSIGNED"})

	case errors.Is(err, screening.ErrInvalidSection),
		errors.Is(err, screening.ErrPayloadMismatch),
		errors.Is(err, cycle.ErrCycleNameRequired),
		errors.Is(err, patient.ErrInvalidSex),
		errors.Is(err, patient.ErrInvalidDateOfBirth),
		errors.Is(err, patient.ErrChildCodeRequired),
		errors.Is(err, service.ErrPasswordTooShort):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, screening.ErrSectionForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied", Details: map[string]string{"reason": err.Error()}})

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountInactive):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})

	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "account temporarily locked",
			Code:  "ACCOUNT_LOCKED",
		})

	case errors.Is(err, service.ErrArchiveDisabled):
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: err.Error()})

	case errors.Is(err, identity.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "user management is temporarily unavailable", Code: "REMOTE_UNAVAILABLE"})

	case errors.Is(err, domain.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out", Code: "TIMEOUT"})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})

	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// actorFrom builds the service actor from the request's session. Routes are
// mounted behind middleware.Auth, so a missing session is a wiring bug.
func actorFrom(c *gin.Context) (service.Actor, bool) {
	sess, ok := session.From(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
		return service.Actor{}, false
	}
	return service.Actor{
		UserID:    sess.UserID,
		Role:      sess.Role(),
		Section:   sess.Section(),
		Token:     sess.AccessToken,
		IP:        c.ClientIP(),
		RequestID: middleware.GetRequestID(c),
	}, true
}
