package handler

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(kind, message string) *Response {
	return &Response{
		Status:  "error",
		Error:   kind,
		Message: message,
	}
}

// Error writes err as a JSON error response. Errors without a kind are
// reported as internal and their detail is kept out of the body.
func Error(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}
	_ = c.Error(err)

	message := appErr.Message
	if appErr.Kind == apperrors.KindInternal {
		message = "internal server error"
	}
	c.AbortWithStatusJSON(appErr.StatusCode(), NewErrorResponse(string(appErr.Kind), message))
}

// BindError turns a gin binding failure into a validation error naming the
// offending fields.
func BindError(err error) *apperrors.AppError {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, describeField(fe))
		}
		return apperrors.New(apperrors.KindValidation, strings.Join(fields, "; "), err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.As(err, &syntaxErr):
		return apperrors.New(apperrors.KindValidation, "malformed JSON body", err)
	case stderrors.As(err, &typeErr):
		return apperrors.New(apperrors.KindValidation, fmt.Sprintf("%s has the wrong type", typeErr.Field), err)
	case stderrors.Is(err, io.EOF):
		return apperrors.New(apperrors.KindValidation, "request body is required", err)
	}
	return apperrors.New(apperrors.KindValidation, "invalid request body", err)
}

func describeField(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "phone":
		return fe.Field() + " is not a valid phone number"
	case "email":
		return fe.Field() + " is not a valid email"
	case "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
