package route

// VariadicArity marks a handler that accepts any number of path captures.
const VariadicArity = -1

// Handler is a routed callback. Invoke receives the ordered capture
// substrings of the matched path, left to right.
type Handler interface {
	// Arity is the exact number of captures the handler expects, or
	// VariadicArity.
	Arity() int
	Invoke(args []string) (any, error)
}

type handlerFunc struct {
	n  int
	fn func(args []string) (any, error)
}

func (h handlerFunc) Arity() int { return h.n }

func (h handlerFunc) Invoke(args []string) (any, error) { return h.fn(args) }

// Func0 through Func4 bind fixed-arity functions as handlers. Registering
// one of these against a template with a different placeholder count fails
// at registration time.

func Func0(fn func() (any, error)) Handler {
	return handlerFunc{0, func([]string) (any, error) { return fn() }}
}

func Func1(fn func(a string) (any, error)) Handler {
	return handlerFunc{1, func(args []string) (any, error) { return fn(args[0]) }}
}

func Func2(fn func(a, b string) (any, error)) Handler {
	return handlerFunc{2, func(args []string) (any, error) { return fn(args[0], args[1]) }}
}

func Func3(fn func(a, b, c string) (any, error)) Handler {
	return handlerFunc{3, func(args []string) (any, error) { return fn(args[0], args[1], args[2]) }}
}

func Func4(fn func(a, b, c, d string) (any, error)) Handler {
	return handlerFunc{4, func(args []string) (any, error) { return fn(args[0], args[1], args[2], args[3]) }}
}

// Variadic binds a function over the raw capture slice. It may be
// registered against templates of any placeholder count, which lets one
// function serve a family of routes of increasing depth.
func Variadic(fn func(args ...string) (any, error)) Handler {
	return handlerFunc{VariadicArity, func(args []string) (any, error) { return fn(args...) }}
}

// Wrapped derives a handler with the same declared arity as h but a
// replacement body. Middleware such as the memoizing cache uses it to stay
// transparent to the registration-time arity check.
func Wrapped(h Handler, fn func(args []string) (any, error)) Handler {
	return handlerFunc{h.Arity(), fn}
}
