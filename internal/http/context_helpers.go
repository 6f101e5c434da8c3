package httpx

import (
	"context"

	domainauth "github.com/target/mmk-inference/internal/domain/auth"
)

// principalKey is an unexported context key type to avoid collisions across packages.
type principalKey struct{}

// SetPrincipalInContext returns a child context that carries the given principal.
func SetPrincipalInContext(ctx context.Context, p domainauth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the request principal. Requests that were not
// authenticated carry the anonymous principal.
func PrincipalFromContext(ctx context.Context) domainauth.Principal {
	if p, ok := ctx.Value(principalKey{}).(domainauth.Principal); ok {
		return p
	}
	return domainauth.Principal{}
}
