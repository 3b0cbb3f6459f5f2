package validator

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

func TestValidPhone(t *testing.T) {
	valid := []string{"+212753235215", "0612345678", "+33 6 12 34 56 78", "(212) 555-0100"}
	for _, p := range valid {
		assert.True(t, ValidPhone(p), p)
	}

	invalid := []string{"", "abc", "12345", "+", "call me maybe", "06-12-ab-56"}
	for _, p := range invalid {
		assert.False(t, ValidPhone(p), p)
	}
}

type patron struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone" binding:"required,phone"`
}

func TestRegisterEnablesPhoneTag(t *testing.T) {
	Register()
	Register()

	assert.NoError(t, binding.Validator.ValidateStruct(&patron{Name: "A", Phone: "+212600000000"}))
	assert.Error(t, binding.Validator.ValidateStruct(&patron{Name: "A", Phone: "nope"}))
}
