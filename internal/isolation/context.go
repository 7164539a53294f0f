package isolation

// Context is the tagged isolation variant attached to work: either no
// isolation (executes on the caller's context, no exclusivity guarantee) or
// bound to a concrete domain.
type Context struct {
	domain *Domain
}

// None returns the no-isolation context.
func None() Context {
	return Context{}
}

// Bound returns a context bound to the given domain.
func Bound(d *Domain) Context {
	return Context{domain: d}
}

// IsBound reports whether the context names a concrete domain.
func (c Context) IsBound() bool {
	return c.domain != nil
}

// Domain returns the bound domain, or nil for None.
func (c Context) Domain() *Domain {
	return c.domain
}

// String renders the context for logs and API payloads.
func (c Context) String() string {
	if c.domain == nil {
		return "none"
	}
	return c.domain.name
}
