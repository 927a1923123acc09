package echoapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/fantakombat/backend/core"
	"github.com/fantakombat/backend/core/course"
	testutil "github.com/fantakombat/backend/tests"
)

func Test_appHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantCode       int
		wantBody       string
		wantRetryAfter string
		wantLogged     bool
		wantShutdown   bool
	}{
		{
			name:     "missing token",
			err:      middleware.ErrJWTMissing,
			wantCode: http.StatusUnauthorized,
			wantBody: `{"error":"missing or malformed jwt"}`,
		},
		{
			name:     "http error",
			err:      errors.Wrap(errHttpForbidden, "checking roles"),
			wantCode: http.StatusForbidden,
			wantBody: `{"error":"permission denied"}`,
		},
		{
			name:     "validation error",
			err:      errors.Wrap(core.NewValidationError(nil, core.FieldError{Field: "name", Error: "taken"}), "creating course"),
			wantCode: http.StatusBadRequest,
			wantBody: `{"name":"taken"}`,
		},
		{
			name:     "not found",
			err:      errors.Wrap(course.ErrLessonNotFound, "resolving lesson"),
			wantCode: http.StatusNotFound,
			wantBody: `{"error":"lesson not found"}`,
		},
		{
			name:           "storage error",
			err:            errors.Wrap(core.NewStorageError("committing transaction", errors.New("connection reset")), "setting attendance"),
			wantCode:       http.StatusServiceUnavailable,
			wantBody:       `{"error":"Service Unavailable"}`,
			wantRetryAfter: storageRetryAfter,
			wantLogged:     true,
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantCode:   http.StatusInternalServerError,
			wantBody:   `{"error":"Internal Server Error"}`,
			wantLogged: true,
		},
		{
			name:         "shutdown",
			err:          errors.Wrap(core.NewShutdownError("integrity issue"), "serving"),
			wantCode:     http.StatusInternalServerError,
			wantBody:     `{"error":"Internal Server Error"}`,
			wantLogged:   true,
			wantShutdown: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := testutil.NewLogger()
			var shutdown bool
			handler := newAppHTTPErrorHandler(logger, testutil.NewTranslator(), func() { shutdown = true })

			rec := httptest.NewRecorder()
			ctx := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/v1/lessons/1", nil), rec)
			handler(tt.err, ctx)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, tt.wantRetryAfter, rec.Header().Get("Retry-After"))
			assert.Equal(t, tt.wantLogged, len(logger.Messages("error")) > 0)
			assert.Equal(t, tt.wantShutdown, shutdown)
		})
	}
}
