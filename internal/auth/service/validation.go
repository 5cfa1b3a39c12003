package service

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength = 12
	maxPasswordLength = 128
	maxEmailLength    = 254
	maxNameLength     = 100

	passwordSpecials = "@$!%*?&"
)

const (
	msgInvalidEmail     = "Invalid email format"
	msgPasswordTooShort = "Password must be at least 12 characters"
	msgPasswordTooLong  = "Password must be at most 128 characters"
	msgPasswordRules    = "Password must include uppercase, lowercase, number, and special character"
	msgPasswordRequired = "Password is required"
	msgTokenRequired    = "Token is required"
)

func validateEmail(v *ValidationError, email string) {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > maxEmailLength {
		v.add("email", msgInvalidEmail)
		return
	}
	addr, err := mail.ParseAddress(email)
	// Reject display-name forms like "Ada <a@x.com>"; only a bare address is
	// an email here.
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@'):], ".") {
		v.add("email", msgInvalidEmail)
	}
}

// validatePassword applies the strength rules: at least 12 characters drawn
// from letters, digits and @$!%*?&, with at least one of each class.
func validatePassword(v *ValidationError, path, password string) {
	if utf8.RuneCountInString(password) < minPasswordLength {
		v.add(path, msgPasswordTooShort)
		return
	}
	if len(password) > maxPasswordLength {
		v.add(path, msgPasswordTooLong)
		return
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		default:
			v.add(path, msgPasswordRules)
			return
		}
	}
	if !upper || !lower || !digit || !special {
		v.add(path, msgPasswordRules)
	}
}

func validateName(v *ValidationError, path, label, name string) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		v.add(path, label+" is required")
	case utf8.RuneCountInString(name) > maxNameLength:
		v.add(path, label+" is too long")
	}
}

func validateRegister(in RegisterInput) error {
	v := &ValidationError{}
	validateEmail(v, in.Email)
	validatePassword(v, "password", in.Password)
	validateName(v, "firstName", "First name", in.FirstName)
	validateName(v, "lastName", "Last name", in.LastName)
	return v.orNil()
}

func validateLogin(email, password string) error {
	v := &ValidationError{}
	validateEmail(v, email)
	if password == "" {
		v.add("password", msgPasswordRequired)
	}
	return v.orNil()
}

func validateReset(token, password string) error {
	v := &ValidationError{}
	if strings.TrimSpace(token) == "" {
		v.add("token", msgTokenRequired)
	}
	validatePassword(v, "password", password)
	return v.orNil()
}
