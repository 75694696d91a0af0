package cjs

// ScopeKind selects where a declaration lands.
type ScopeKind uint8

const (
	// FunctionScope regions are opened for the program and function bodies.
	// var declarations and parameters bind here.
	FunctionScope ScopeKind = iota
	// BlockScope regions are opened for blocks; let, const, class and
	// function declarations bind in the nearest one.
	BlockScope
)

func (k ScopeKind) String() string {
	if k == FunctionScope {
		return "function"
	}
	return "block"
}

// ResolveFunc is called once for a reference when its binding is found.
// A stack depth of zero means the reference was never shadowed.
type ResolveFunc func(s *ScopeStack)

type scope struct {
	kind     ScopeKind
	bindings map[string]struct{}
}

func (s *scope) has(name string) bool {
	_, ok := s.bindings[name]
	return ok
}

// pendingRefs queues callbacks per name, remembering first-insertion order
// so callbacks fire deterministically.
type pendingRefs struct {
	order []string
	refs  map[string][]ResolveFunc
}

func newPendingRefs() *pendingRefs {
	return &pendingRefs{refs: make(map[string][]ResolveFunc)}
}

func (p *pendingRefs) add(name string, fns ...ResolveFunc) {
	if len(fns) == 0 {
		return
	}
	existing, ok := p.refs[name]
	if !ok {
		p.order = append(p.order, name)
	}
	p.refs[name] = append(existing, fns...)
}

func (p *pendingRefs) take(name string) []ResolveFunc {
	fns := p.refs[name]
	delete(p.refs, name)
	return fns
}

// ScopeStack resolves references against lexical scopes without a
// separate declaration pass. A reference registered with OnNameResolved is
// decided when a scope closes: the innermost enclosing scope that declared
// the name by then captures it, and a reference no scope captures is
// resolved as a module global when the outermost scope closes.
//
// A ScopeStack belongs to a single traversal and is not safe for
// concurrent use.
type ScopeStack struct {
	scopes  []*scope
	pending *pendingRefs
}

// NewScopeStack returns an empty stack.
func NewScopeStack() *ScopeStack {
	return &ScopeStack{pending: newPendingRefs()}
}

// Depth is the number of open scopes.
func (s *ScopeStack) Depth() int {
	return len(s.scopes)
}

// Open pushes a scope of kind, runs body and closes the scope again.
//
// References registered before Open are hidden while body runs, so names
// declared inside cannot capture them. When the scope closes, callbacks
// for the names it declared fire while it is still on the stack; the
// others are merged back behind the hidden ones. Closing the outermost
// scope fires everything left.
func (s *ScopeStack) Open(kind ScopeKind, body func()) {
	sc := &scope{kind: kind, bindings: make(map[string]struct{})}
	outer := s.pending
	s.pending = newPendingRefs()
	s.scopes = append(s.scopes, sc)

	body()

	if s.Depth() == 0 || s.scopes[len(s.scopes)-1] != sc {
		fail("scope closed out of order")
	}

	inner := s.pending
	for _, name := range inner.order {
		if sc.has(name) {
			for _, fn := range inner.take(name) {
				fn(s)
			}
		}
	}
	s.scopes = s.scopes[:len(s.scopes)-1]

	merged := newPendingRefs()
	for _, name := range inner.order {
		merged.add(name, inner.refs[name]...)
	}
	for _, name := range outer.order {
		merged.add(name, outer.refs[name]...)
	}
	s.pending = merged

	if s.Depth() == 0 {
		s.pending = newPendingRefs()
		for _, name := range merged.order {
			for _, fn := range merged.refs[name] {
				fn(s)
			}
		}
	}
}

// Declare binds name in the innermost open scope of kind. FunctionScope
// declarations pass over block scopes the way var hoisting does.
func (s *ScopeStack) Declare(kind ScopeKind, name string) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if s.scopes[i].kind == kind {
			s.scopes[i].bindings[name] = struct{}{}
			return
		}
	}
	fail("no open %s scope to declare %q in", kind, name)
}

// OnNameResolved queues fn for the next resolution of name. fn must check
// Depth itself to tell a shadowed reference from a global one.
func (s *ScopeStack) OnNameResolved(name string, fn ResolveFunc) {
	s.pending.add(name, fn)
}

// join returns n triggers. then runs when every trigger has fired once;
// firing any trigger twice is an internal failure.
func join(n int, then func()) []func() {
	remaining := n
	triggers := make([]func(), n)
	for i := range triggers {
		fired := false
		triggers[i] = func() {
			if fired {
				fail("resolution callback fired twice")
			}
			fired = true
			remaining--
			if remaining == 0 {
				then()
			}
		}
	}
	return triggers
}

// whenGlobal runs then once every name in names has resolved as an
// unshadowed module-level reference.
func (s *ScopeStack) whenGlobal(names []string, then func()) {
	triggers := join(len(names), then)
	for i, name := range names {
		trigger := triggers[i]
		s.OnNameResolved(name, func(st *ScopeStack) {
			if st.Depth() == 0 {
				trigger()
			}
		})
	}
}
