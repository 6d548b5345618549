package server

import (
	"regexp"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const passwordTag = "password"

var (
	passwordChars     = regexp.MustCompile(`^[A-Za-z0-9@$!%*#?&]+$`)
	registerRulesOnce sync.Once
)

// validPassword accepts 8 to 32 characters from [A-Za-z0-9@$!%*#?&] with at
// least one letter and one digit.
func validPassword(fl validator.FieldLevel) bool {
	password := fl.Field().String()
	if len(password) < 8 || len(password) > 32 || !passwordChars.MatchString(password) {
		return false
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return letter && digit
}

func registerValidationRules() {
	registerRulesOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation(passwordTag, validPassword)
		}
	})
}
