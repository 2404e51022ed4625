package auth

// Scope is the effective factory filter for a request.
// A scope is either unrestricted (all factories) or pinned to one factory id.
// A pinned scope with an empty id matches nothing.
type Scope struct {
	factoryID string
	all       bool
}

// AllFactories returns an unrestricted scope.
func AllFactories() Scope {
	return Scope{all: true}
}

// SingleFactory returns a scope pinned to factoryID.
func SingleFactory(factoryID string) Scope {
	return Scope{factoryID: factoryID}
}

// ResolveScope computes the effective factory filter.
//
// Privileged callers get the requested factory, or every factory when none is
// requested. Everyone else is pinned to their home factory and the request is
// ignored rather than rejected.
func ResolveScope(caller Caller, requested string) Scope {
	if caller.Privileged() {
		if requested != "" {
			return SingleFactory(requested)
		}
		return AllFactories()
	}
	return SingleFactory(caller.TenantID)
}

// All reports whether the scope is unrestricted.
func (s Scope) All() bool {
	return s.all
}

// FactoryID returns the pinned factory id, empty for unrestricted scopes.
func (s Scope) FactoryID() string {
	if s.all {
		return ""
	}
	return s.factoryID
}

// Empty reports whether the scope can never match a factory.
func (s Scope) Empty() bool {
	return !s.all && s.factoryID == ""
}

// Allows reports whether factoryID is visible within the scope.
func (s Scope) Allows(factoryID string) bool {
	if s.all {
		return true
	}
	return s.factoryID != "" && s.factoryID == factoryID
}

// Authorize returns ErrTenantMismatch when a standard caller targets another
// factory, and ErrForbidden for any other denial.
func (c Caller) Authorize(factoryID string) error {
	if ResolveScope(c, "").Allows(factoryID) {
		return nil
	}
	if c.TenantID != "" && factoryID != "" {
		return ErrTenantMismatch
	}
	return ErrForbidden
}
