// Package route implements the pattern-based dispatch core: path templates
// compiled to anchored matchers, ordered per-operation route tables, and
// the Node coercion model handlers return through.
//
// Routes are tried strictly in registration order and the first full match
// wins. A broad template registered early permanently shadows narrower
// templates registered later; ordering the registration phase is the
// caller's job.
package route

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/dabrowne/ledgerfs/internal/util"
)

// Op names an operation table. Operations map onto the syscall-like
// surface the filesystem adapter exposes.
type Op string

const (
	OpReadDir   Op = "readdir"
	OpReadLink  Op = "readlink"
	OpOpen      Op = "open"
	OpRead      Op = "read"
	OpGetXAttr  Op = "getxattr"
	OpListXAttr Op = "listxattr"
)

// ErrNotRouted reports that no registered route matched a path for the
// requested operation. This is an expected outcome; callers decide whether
// to try another table, fall back, or surface "no such entry".
var ErrNotRouted = errors.New("no route matched")

type tableEntry struct {
	template string
	pattern  *regexp.Regexp
	arity    int
	handler  Handler
}

// Router holds the ordered per-operation route tables.
type Router struct {
	tables map[Op][]tableEntry
	log    zerolog.Logger
}

func NewRouter() *Router {
	return &Router{
		tables: make(map[Op][]tableEntry),
		log:    util.GetLogger("route"),
	}
}

// Handle compiles template and appends the route to op's table. It fails
// when the handler's declared arity does not equal the template's
// placeholder count; variadic handlers accept any count.
func (r *Router) Handle(op Op, template string, h Handler) error {
	pattern, arity, err := compilePattern(template)
	if err != nil {
		return err
	}
	if ha := h.Arity(); ha != VariadicArity && ha != arity {
		return fmt.Errorf("template %q has %d captures but handler takes %d", template, arity, ha)
	}
	r.tables[op] = append(r.tables[op], tableEntry{template, pattern, arity, h})
	return nil
}

// HandleAll registers one handler for every operation/template pairing.
// This is how a single function serves both list and read semantics for
// overlapping path shapes.
func (r *Router) HandleAll(ops []Op, templates []string, h Handler) error {
	for _, template := range templates {
		for _, op := range ops {
			if err := r.Handle(op, template, h); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dispatch scans op's table in registration order, invokes the handler of
// the first template matching path in full with the ordered captures as
// arguments, and coerces the result. Returns ErrNotRouted when nothing
// matches; handler errors propagate unchanged.
func (r *Router) Dispatch(op Op, path string) (*Node, error) {
	for _, e := range r.tables[op] {
		m := e.pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		r.log.Debug().
			Str("op", string(op)).
			Str("path", path).
			Str("template", e.template).
			Msg("Dispatching route")
		v, err := e.handler.Invoke(m[1:])
		if err != nil {
			return nil, err
		}
		return EnsureNode(v), nil
	}
	return nil, ErrNotRouted
}
