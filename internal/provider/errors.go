package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentityRejected is returned when the caller cannot act on behalf of a source package.
	ErrIdentityRejected = errors.New("identity rejected")

	// ErrUnknownURI is returned when no table serves a URI.
	ErrUnknownURI = errors.New("unknown URI")
)

// IdentityRejectedError tells why Package could not be used by the caller.
type IdentityRejectedError struct {
	Package string
	Reason  string
}

func (e *IdentityRejectedError) Error() string {
	if e.Package == "" {
		return fmt.Sprintf("identity rejected: %s", e.Reason)
	}

	return fmt.Sprintf("identity rejected for package %q: %s", e.Package, e.Reason)
}

func (e *IdentityRejectedError) Is(target error) bool {
	return target == ErrIdentityRejected
}
