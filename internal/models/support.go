package models

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	maxSupportName    = 120
	maxSupportEmail   = 254
	maxSupportMessage = 4000
)

type SupportRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Message        string `json:"message"`
	RecaptchaToken string `json:"recaptchaToken"`
}

func (r *SupportRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.Message = strings.TrimSpace(r.Message)
	r.RecaptchaToken = strings.TrimSpace(r.RecaptchaToken)
}

func (r *SupportRequest) Validate() map[string]string {
	errors := map[string]string{}

	if r.Name == "" {
		errors["name"] = "Name is required"
	} else if utf8.RuneCountInString(r.Name) > maxSupportName {
		errors["name"] = "Name is too long"
	}

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if len(r.Email) > maxSupportEmail {
		errors["email"] = "Email is too long"
	} else if _, err := mail.ParseAddress(r.Email); err != nil {
		errors["email"] = "Email is invalid"
	}

	if r.Message == "" {
		errors["message"] = "Message is required"
	} else if utf8.RuneCountInString(r.Message) > maxSupportMessage {
		errors["message"] = "Message is too long"
	}

	if r.RecaptchaToken == "" {
		errors["recaptchaToken"] = "reCAPTCHA token is required"
	}
	return errors
}
