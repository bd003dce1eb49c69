package pilotdto

import "fmt"

// DomainError 도메인 공통 오류
type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewDomainError(code, message string, retryable bool) *DomainError {
	return &DomainError{Code: code, Message: message, Retryable: retryable}
}
