package session

import (
	"errors"
	"net/mail"
	"strings"
)

const (
	pinLength  = 6
	codeLength = 6
)

var (
	ErrInvalidEmail = errors.New("enter a valid email address")
	ErrInvalidPIN   = errors.New("PIN must be exactly 6 digits")
	ErrInvalidCode  = errors.New("code must be exactly 6 digits")
)

// ValidateEmail accepts a bare address only, no display name.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

func ValidatePIN(pin string) error {
	if !isDigits(pin, pinLength) {
		return ErrInvalidPIN
	}
	return nil
}

func ValidateCode(code string) error {
	if !isDigits(code, codeLength) {
		return ErrInvalidCode
	}
	return nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
