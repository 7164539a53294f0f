package isolation

import "context"

// Work is the unit of callable work behaviors and closures wrap.
type Work func(ctx context.Context) (any, error)

// Behavior is a callable definition carrying its isolation declaration: an
// optional static domain binding, whether it accepts a dynamic isolation
// parameter, and whether it contains a suspension point (async).
//
// Resolution at each call boundary, in order:
//  1. a static concrete binding wins; dynamic parameters are rejected
//  2. a dynamic parameter binds the call to the supplied domain, or makes
//     it context-free when None
//  3. synchronous behaviors can only run on the domain already current;
//     crossing domains requires a suspension point
type Behavior struct {
	name    string
	static  Context
	dynamic bool
	async   bool
	fn      Work
}

// BehaviorOption configures a Behavior at construction.
type BehaviorOption func(*Behavior)

// OnDomain statically binds the behavior to a domain.
func OnDomain(d *Domain) BehaviorOption {
	return func(b *Behavior) { b.static = Bound(d) }
}

// AcceptsDynamic declares that callers may supply an isolation context per
// call ("any domain or none").
func AcceptsDynamic() BehaviorOption {
	return func(b *Behavior) { b.dynamic = true }
}

// Async declares the behavior contains a suspension point, the only legal
// place a domain switch may occur.
func Async() BehaviorOption {
	return func(b *Behavior) { b.async = true }
}

// NewBehavior builds a behavior from its declaration. Contradictory
// declarations (a concrete static binding together with a dynamic
// parameter) fail here, at construction, not at call time.
func NewBehavior(name string, fn Work, opts ...BehaviorOption) (*Behavior, error) {
	b := &Behavior{name: name, fn: fn}
	for _, opt := range opts {
		opt(b)
	}
	if b.static.IsBound() && b.dynamic {
		return nil, conflictf("behavior %s declares a concrete domain and a dynamic isolation parameter", name)
	}
	return b, nil
}

// Name returns the behavior's declared name.
func (b *Behavior) Name() string {
	return b.name
}

// Isolation returns the behavior's static isolation declaration.
func (b *Behavior) Isolation() Context {
	return b.static
}

// IsAsync reports whether the behavior declares a suspension point.
func (b *Behavior) IsAsync() bool {
	return b.async
}

// Call invokes the behavior without a dynamic isolation parameter.
func (b *Behavior) Call(ctx context.Context) (any, error) {
	return b.call(ctx, None(), false)
}

// CallWith invokes the behavior with a dynamic isolation parameter.
func (b *Behavior) CallWith(ctx context.Context, arg Context) (any, error) {
	return b.call(ctx, arg, true)
}

func (b *Behavior) call(ctx context.Context, arg Context, hasArg bool) (any, error) {
	if b.static.IsBound() {
		if hasArg {
			return nil, conflictf("behavior %s is statically bound to %s and rejects dynamic parameters", b.name, b.static)
		}
		d := b.static.Domain()
		if Current(ctx) == d {
			return b.fn(ctx)
		}
		if !b.async {
			// No suspension point means no legal place to switch domains:
			// the call fails at the boundary and the body never runs.
			e := &ViolationError{Op: b.name, Domain: d.name}
			if cur := Current(ctx); cur != nil {
				e.Current = cur.name
			}
			return nil, e
		}
		return d.runAwait(ctx, b.fn)
	}

	if hasArg {
		if !b.dynamic {
			return nil, conflictf("behavior %s does not accept a dynamic isolation parameter", b.name)
		}
		if arg.IsBound() {
			return arg.Domain().runAwait(ctx, b.fn)
		}
		// None: context-free, inline on the caller's context.
		return b.fn(ctx)
	}

	// Unbound: executes on the caller's context with no exclusivity
	// guarantee.
	return b.fn(ctx)
}

// Rebind derives a behavior delegating to this one with a replaced domain
// binding. Only an async behavior may rebind: a fully synchronous call has
// no suspension point where the context switch could happen.
func (b *Behavior) Rebind(name string, d *Domain) (*Behavior, error) {
	if !b.async {
		return nil, conflictf("behavior %s is synchronous and cannot rebind its inherited domain", b.name)
	}
	return &Behavior{name: name, static: Bound(d), async: true, fn: b.fn}, nil
}
