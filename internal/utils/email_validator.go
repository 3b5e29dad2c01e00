package utils

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/lindell/go-burner-email-providers/burner"
)

// EmailValidationError represents an error during email validation
type EmailValidationError struct {
	Message string
	Code    string
}

func (e EmailValidationError) Error() string {
	return e.Message
}

// EmailValidationConfig holds configuration for sign-up email validation
type EmailValidationConfig struct {
	BlockDisposableEmails bool
	// When non-empty, only these company domains may sign up
	AllowedDomains []string
}

// ValidateEmailAddress validates an email address and checks if it's from a disposable email service
func ValidateEmailAddress(email string) error {
	return ValidateEmailAddressWithConfig(email, nil)
}

// ValidateEmailAddressWithConfig validates an email address with configuration options.
// Pass nil for config to block disposable emails and allow any domain.
func ValidateEmailAddressWithConfig(email string, cfg *EmailValidationConfig) error {
	if cfg == nil {
		cfg = &EmailValidationConfig{BlockDisposableEmails: true}
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return &EmailValidationError{
			Message: "Invalid email format",
			Code:    "INVALID_FORMAT",
		}
	}

	domain, err := extractDomain(email)
	if err != nil {
		return &EmailValidationError{
			Message: "Could not extract domain from email",
			Code:    "DOMAIN_EXTRACTION_ERROR",
		}
	}

	if cfg.BlockDisposableEmails && burner.IsBurnerEmail(strings.ToLower(strings.TrimSpace(email))) {
		return &EmailValidationError{
			Message: fmt.Sprintf("Email from disposable domain '%s' is not allowed. Please use a permanent email address.", domain),
			Code:    "DISPOSABLE_EMAIL",
		}
	}

	if len(cfg.AllowedDomains) > 0 && !domainAllowed(domain, cfg.AllowedDomains) {
		return &EmailValidationError{
			Message: "Please sign up with your company email address.",
			Code:    "DOMAIN_NOT_ALLOWED",
		}
	}

	return nil
}

func domainAllowed(domain string, allowed []string) bool {
	for _, d := range allowed {
		if strings.EqualFold(strings.TrimSpace(d), domain) {
			return true
		}
	}
	return false
}

// extractDomain extracts the domain part from an email address
func extractDomain(email string) (string, error) {
	email = strings.TrimSpace(email)
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid email format")
	}
	return strings.ToLower(parts[1]), nil
}
