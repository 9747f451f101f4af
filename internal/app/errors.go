package app

import "fmt"

// DomainError is a service-level failure that maps one-to-one onto an HTTP
// response: Status becomes the response code, Code and Message the error
// body, and Details an optional payload (for example the list of valid
// kernel file types).
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}
