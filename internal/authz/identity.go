package authz

import (
	"context"
	"net/http"
	"strings"
)

// Headers set by the session layer in front of the API.
const (
	HeaderRole      = "X-User-Role"
	HeaderPartnerID = "X-Partner-ID"
	HeaderUser      = "X-User-Name"
)

// IdentityFromRequest reads the identity the session layer attached to r.
// A request without a role header is anonymous.
func IdentityFromRequest(r *http.Request) Identity {
	role := strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderRole)))
	if role == "" {
		return Identity{}
	}
	return Identity{
		Authenticated: true,
		Role:          Role(role),
		PartnerID:     strings.TrimSpace(r.Header.Get(HeaderPartnerID)),
		Name:          r.Header.Get(HeaderUser),
	}
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or an anonymous one.
func FromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

// Actor names id for audit records.
func (id Identity) Actor() string {
	if !id.Authenticated {
		return "anonymous"
	}
	if id.Name != "" {
		return id.Name
	}
	return strings.ToLower(string(id.Role))
}
