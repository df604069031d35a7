package apierror_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seiforesti/data-wave-sub013/pkg/apierror"
)

func TestError_Message(t *testing.T) {
	t.Run("without internal error", func(t *testing.T) {
		err := apierror.NotFound("Scan configuration")
		assert.Equal(t, "NOT_FOUND: Scan configuration not found", err.Error())
	})

	t.Run("with internal error", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := apierror.InternalError(inner)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, inner, errors.Unwrap(err))
	})
}

func TestError_WriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	apierror.Conflict("Run is already terminal").WriteJSON(rec)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp apierror.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apierror.CodeConflict, resp.Code)
	assert.Equal(t, "Run is already terminal", resp.Message)
}

func TestError_InternalErrorNotExposed(t *testing.T) {
	rec := httptest.NewRecorder()
	apierror.InternalError(errors.New("pq: relation does not exist")).WriteJSON(rec)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestValidationFailed_CarriesDetails(t *testing.T) {
	details := []apierror.ValidationError{
		{Field: "scan_type", Message: "must be one of full, incremental, sample"},
	}
	err := apierror.ValidationFailed("Validation failed", details)

	assert.Equal(t, http.StatusUnprocessableEntity, err.Status)

	rec := httptest.NewRecorder()
	err.WriteJSON(rec)

	var resp apierror.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, apierror.CodeValidationFailed, resp.Code)
	require.NotNil(t, resp.Details)
}

func TestConstructors_StatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, apierror.BadRequest("x").Status)
	assert.Equal(t, http.StatusUnauthorized, apierror.Unauthorized("").Status)
	assert.Equal(t, http.StatusNotFound, apierror.NotFound("").Status)
	assert.Equal(t, http.StatusConflict, apierror.Conflict("x").Status)
	assert.Equal(t, http.StatusServiceUnavailable, apierror.ServiceUnavailable("").Status)
	assert.Equal(t, http.StatusTooManyRequests, apierror.RateLimitExceeded().Status)
}

func TestUnauthorized_DefaultMessage(t *testing.T) {
	err := apierror.Unauthorized("")
	assert.Equal(t, "Authentication required", err.Message)
}

func TestWithDetails_Chains(t *testing.T) {
	err := apierror.BadRequest("Invalid cursor").WithDetails(map[string]string{"cursor": "abc"})
	assert.NotNil(t, err.Details)
}
