package entity

// DomainError is raised by entity guards when an operation would violate
// an invariant, most often an illegal status transition. The code is a
// stable identifier callers branch on via errors.As; the message is for
// humans and logs only.
type DomainError struct {
	message string
	code    string
}

// NewDomainError builds a domain error from a message and a stable code.
func NewDomainError(message, code string) *DomainError {
	return &DomainError{message: message, code: code}
}

func (e *DomainError) Error() string { return e.message }

// Code returns the stable identifier for this error.
func (e *DomainError) Code() string { return e.code }

// Message returns the human-readable description.
func (e *DomainError) Message() string { return e.message }
