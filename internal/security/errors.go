package security

import (
	"fmt"
)

// CredentialError represents errors related to credential persistence
type CredentialError struct {
	Operation string
	Message   string
	Err       error
}

func NewCredentialError(operation, message string) *CredentialError {
	return &CredentialError{
		Operation: operation,
		Message:   message,
	}
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s failed: %s", e.Operation, e.Message)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}

func (e *CredentialError) WithCause(err error) *CredentialError {
	e.Err = err
	return e
}

// CryptoError represents errors from cryptographic operations
type CryptoError struct {
	Operation string
	Message   string
	Err       error
}

func NewCryptoError(operation, message string) *CryptoError {
	return &CryptoError{
		Operation: operation,
		Message:   message,
	}
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s failed: %s", e.Operation, e.Message)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

func (e *CryptoError) WithCause(err error) *CryptoError {
	e.Err = err
	return e
}

// RedactString redacts a sensitive string for logging, keeping only a short
// prefix so events can still be correlated.
func RedactString(s string) string {
	if len(s) <= 8 {
		return "[redacted]"
	}
	return s[:4] + "..." + "[redacted]"
}
