package isolation

import "context"

// Closure is a captured unit of work. A closure created with Capture
// inherits the lexical domain of its creation site and executes under it no
// matter where it is later invoked from. A closure created with Detach
// carries no inherited domain and must receive one dynamically — with one
// exception: task-spawn primitives stamp the spawn site's domain onto a
// detached closure (see the task package).
type Closure struct {
	fn       Work
	lexical  Context
	detached bool
}

// Capture creates a closure inheriting the lexical domain current at the
// creation site (None when created off-domain).
func Capture(ctx context.Context, fn Work) *Closure {
	c := &Closure{fn: fn}
	if d := Current(ctx); d != nil {
		c.lexical = Bound(d)
	}
	return c
}

// Detach creates an independently-executable closure with no inherited
// domain.
func Detach(fn Work) *Closure {
	return &Closure{fn: fn, detached: true}
}

// IsDetached reports whether the closure was marked independently
// executable.
func (c *Closure) IsDetached() bool {
	return c.detached
}

// Lexical returns the domain captured at creation (None for detached
// closures).
func (c *Closure) Lexical() Context {
	return c.lexical
}

// Fn returns the wrapped work.
func (c *Closure) Fn() Work {
	return c.fn
}

// Invoke runs the closure with no dynamic parameter: a captured closure
// executes under its creation-site domain, a detached one runs context-free
// on the caller's context.
func (c *Closure) Invoke(ctx context.Context) (any, error) {
	return c.InvokeWith(ctx, None())
}

// InvokeWith runs the closure with a dynamic isolation parameter.
func (c *Closure) InvokeWith(ctx context.Context, arg Context) (any, error) {
	if c.detached {
		if arg.IsBound() {
			return arg.Domain().runAwait(ctx, c.fn)
		}
		return c.fn(ctx)
	}

	if arg.IsBound() && arg.Domain() != c.lexical.Domain() {
		return nil, conflictf("closure inherits domain %s and cannot be re-bound to %s", c.lexical, arg)
	}
	if c.lexical.IsBound() {
		return c.lexical.Domain().runAwait(ctx, c.fn)
	}
	return c.fn(ctx)
}
