package domain

import "context"

type identityKey struct{}

// Identity is the acting user on whose behalf an ingestion or a reconciliation
// poll runs.
type Identity struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
}

// IsZero reports whether no identity fields are set.
func (i Identity) IsZero() bool {
	return i.UserID == "" && i.ProjectID == ""
}

// WithIdentity stores an Identity in the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the Identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
