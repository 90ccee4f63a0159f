package discovery

import (
	"errors"
	"strings"
)

var (
	// ErrMissingCredential is returned when no configured provider can serve
	// the request. The concrete error is a *CredentialError.
	ErrMissingCredential = errors.New("missing api credentials")
	// ErrNotFound is returned only when every consulted source answered and
	// none of them knows the title.
	ErrNotFound = errors.New("title not found")
)

// CredentialError names the environment keys that would enable a request.
// Alternatives are joined with " or ".
type CredentialError struct {
	Keys []string
}

func (e *CredentialError) Error() string {
	if len(e.Keys) == 0 {
		return ErrMissingCredential.Error()
	}
	return ErrMissingCredential.Error() + ": " + strings.Join(e.Keys, ", ")
}

func (e *CredentialError) Is(target error) bool { return target == ErrMissingCredential }
