package validator

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	phonePattern = regexp.MustCompile(`^\+?[0-9(][0-9 ().-]{5,24}$`)
	registerOnce sync.Once
)

// ValidPhone accepts international and local phone numbers with common
// separators; at least 6 digits are required.
func ValidPhone(phone string) bool {
	phone = strings.TrimSpace(phone)
	if !phonePattern.MatchString(phone) {
		return false
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return digits >= 6
}

func phoneField(fl validator.FieldLevel) bool {
	return ValidPhone(fl.Field().String())
}

// CustomValidators are the tags registered on gin's binding engine.
func CustomValidators() map[string]validator.Func {
	return map[string]validator.Func{
		"phone": phoneField,
	}
}

// Register installs the custom tags and json field naming on gin's default
// validator. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		for tag, fn := range CustomValidators() {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(err)
			}
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
}
