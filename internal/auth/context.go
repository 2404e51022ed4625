package auth

import "context"

type contextKey string

const (
	contextKeyTenant  contextKey = "auth.tenant_id"
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
)

// Caller is the identity attached to a request.
type Caller struct {
	Subject  string
	Role     Role
	TenantID string
}

// Privileged reports whether the caller may act across all factories.
func (c Caller) Privileged() bool {
	return c.Role.Privileged()
}

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, tenantID string, role Role, subject string) context.Context {
	ctx = context.WithValue(ctx, contextKeyTenant, tenantID)
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	return ctx
}

// WithCaller stores a caller in context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return WithIdentity(ctx, caller.TenantID, caller.Role, caller.Subject)
}

// CallerFromContext assembles the caller identity from context.
func CallerFromContext(ctx context.Context) Caller {
	return Caller{
		Subject:  SubjectFromContext(ctx),
		Role:     RoleFromContext(ctx),
		TenantID: TenantIDFromContext(ctx),
	}
}

// TenantIDFromContext extracts tenant id from context.
func TenantIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyTenant)
	if tenantID, ok := value.(string); ok {
		return tenantID
	}
	return ""
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeySubject)
	if subject, ok := value.(string); ok {
		return subject
	}
	return ""
}
