// Package jobs binds job kinds to their handlers and declares the static
// jobs registered at boot.
package jobs

import (
	"fmt"

	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/executor"
)

// Registry is the closed set of runnable job kinds. It is fully populated
// during startup wiring and read-only afterwards, so lookups need no lock.
// Job registration checks Has() up front; an unknown kind can never reach
// run time.
type Registry struct {
	handlers map[domain.JobKind]executor.Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.JobKind]executor.Handler)}
}

// Bind attaches a handler to a kind. Binding the same kind twice is a
// wiring bug and panics during startup rather than silently replacing.
func (r *Registry) Bind(kind domain.JobKind, h executor.Handler) {
	if _, ok := r.handlers[kind]; ok {
		panic(fmt.Sprintf("job kind %q bound twice", kind))
	}
	r.handlers[kind] = h
}

func (r *Registry) Has(kind domain.JobKind) bool {
	_, ok := r.handlers[kind]
	return ok
}

// Resolve returns the handler for a kind.
func (r *Registry) Resolve(kind domain.JobKind) (executor.Handler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobKind, kind)
	}
	return h, nil
}
