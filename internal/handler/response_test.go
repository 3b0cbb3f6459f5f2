package handler

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/slot-booking/internal/model"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
	"github.com/jwalitptl/slot-booking/pkg/validator"
)

func TestBindErrorNamesFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator.Register()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","phone":"abc"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var patron model.Patron
	err := BindError(c.ShouldBindJSON(&patron))
	assert.Equal(t, apperrors.KindValidation, err.Kind)
	assert.Contains(t, err.Message, "name is required")
	assert.Contains(t, err.Message, "phone is not a valid phone number")
}

func TestBindErrorBodies(t *testing.T) {
	assert.Equal(t, "request body is required", BindError(io.EOF).Message)
	assert.Equal(t, "invalid request body", BindError(errors.New("odd")).Message)
}

func TestErrorHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, errors.New("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"status":"error","error":"internal","message":"internal server error"}`, w.Body.String())

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Error(c, apperrors.Storage("get slot", errors.New("database is locked")))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"storage"`)
}
