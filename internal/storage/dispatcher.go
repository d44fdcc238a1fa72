package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Dispatcher is the scheme-based dispatch table.
//
// It is configured once and then only read; Sessions hold the per-run state.
type Dispatcher struct {
	openers map[string]Opener
	local   Opener
}

// NewDispatcher returns a dispatcher whose fallback for unprefixed locations
// is the given local opener.
func NewDispatcher(local Opener) *Dispatcher {
	return &Dispatcher{openers: make(map[string]Opener), local: local}
}

// Register adds an object-storage backend for "<scheme>://" locations.
func (d *Dispatcher) Register(scheme string, opener Opener) error {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	switch {
	case scheme == "":
		return fmt.Errorf("register backend: empty scheme")
	case scheme == LocalScheme:
		return fmt.Errorf("register backend: %q is reserved for local paths", scheme)
	case strings.Contains(scheme, ":") || strings.Contains(scheme, "/"):
		return fmt.Errorf("register backend: invalid scheme %q", scheme)
	case opener == nil:
		return fmt.Errorf("register backend %q: nil opener", scheme)
	}
	if _, exists := d.openers[scheme]; exists {
		return fmt.Errorf("register backend: duplicate scheme %q", scheme)
	}
	d.openers[scheme] = opener
	return nil
}

// Schemes returns the registered object-storage schemes, sorted.
func (d *Dispatcher) Schemes() []string {
	out := make([]string, 0, len(d.openers))
	for s := range d.openers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Parse resolves a raw location to its backend scheme and components.
func (d *Dispatcher) Parse(raw string) (Location, error) {
	for scheme := range d.openers {
		if strings.HasPrefix(raw, scheme+"://") {
			return parseObjectURI(scheme, raw)
		}
	}
	return localLocation(raw)
}

// NewSession starts a run-scoped session. Callers must Close it.
func (d *Dispatcher) NewSession() *Session {
	return &Session{
		dispatcher: d,
		backends:   make(map[string]Backend),
		openErrs:   make(map[string]error),
	}
}

// Session opens each backend at most once and keeps it for one run.
//
// A Session is not safe for concurrent use.
type Session struct {
	dispatcher *Dispatcher
	backends   map[string]Backend
	openErrs   map[string]error
	order      []string
	closed     bool
}

// Delete parses raw and deletes the artifact through the matching backend.
func (s *Session) Delete(ctx context.Context, raw string) (Location, Outcome, error) {
	if s.closed {
		return Location{}, 0, fmt.Errorf("storage session is closed")
	}
	loc, err := s.dispatcher.Parse(raw)
	if err != nil {
		return Location{}, 0, err
	}
	backend, err := s.backend(ctx, loc)
	if err != nil {
		return loc, 0, err
	}
	outcome, err := backend.Delete(ctx, loc)
	if err != nil {
		return loc, 0, err
	}
	return loc, outcome, nil
}

func (s *Session) backend(ctx context.Context, loc Location) (Backend, error) {
	if b, ok := s.backends[loc.Scheme]; ok {
		return b, nil
	}
	if err, ok := s.openErrs[loc.Scheme]; ok {
		return nil, err
	}

	opener := s.dispatcher.local
	if !loc.IsLocal() {
		opener = s.dispatcher.openers[loc.Scheme]
	}
	if opener == nil {
		return nil, unavailable(loc.Raw, fmt.Errorf("no backend for scheme %q", loc.Scheme))
	}

	b, err := opener(ctx)
	if err != nil {
		if !errors.Is(err, ErrBackendUnavailable) {
			err = unavailable(loc.Raw, fmt.Errorf("open %s backend: %w", loc.Scheme, err))
		}
		s.openErrs[loc.Scheme] = err
		return nil, err
	}
	s.backends[loc.Scheme] = b
	s.order = append(s.order, loc.Scheme)
	return b, nil
}

// Opened returns the schemes whose backends were opened, in opening order.
func (s *Session) Opened() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Close releases every opened backend that implements io.Closer, in reverse
// opening order. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for i := len(s.order) - 1; i >= 0; i-- {
		scheme := s.order[i]
		if c, ok := s.backends[scheme].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s backend: %w", scheme, err))
			}
		}
	}
	s.backends = nil
	return errors.Join(errs...)
}
