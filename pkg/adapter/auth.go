package adapter

import (
	"context"
)

// Authenticator verifies the username/password pair a client presents when
// a session opens.
//
// Implementations must be safe for concurrent use across sessions. A wrong
// password or unknown user is reported as (false, nil); a non-nil error means
// the backend itself failed and the session is refused without a verdict.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
}

// AuthenticatorFunc adapts a plain function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, username, password string) (bool, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, username, password string) (bool, error) {
	return f(ctx, username, password)
}
