// Package session tracks the providers registered on behalf of one source,
// such as a connected extension host or a loaded manifest, so that all of
// them can be disposed together when the source goes away.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	docerrors "github.com/conneroisu/docfeat/internal/errors"
	"github.com/conneroisu/docfeat/internal/features"
	"github.com/conneroisu/docfeat/internal/logging"
	"github.com/conneroisu/docfeat/internal/registry"
)

// Registration describes one provider a session registered.
type Registration struct {
	ID      string
	Feature features.Feature
	Options features.RegistrationOptions
}

type registration struct {
	Registration
	dispose registry.Disposer
}

// Session owns a set of registrations keyed by caller-chosen ids.
type Session struct {
	id     string
	source string
	regs   *features.Registries
	logger logging.Logger

	mu            sync.Mutex
	registrations map[string]*registration
	closed        bool
}

// New creates a session registering into regs. source labels the providers
// of this session in their registration options.
func New(regs *features.Registries, source string, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	id := uuid.New().String()
	return &Session{
		id:            id,
		source:        source,
		regs:          regs,
		logger:        logger.WithComponent("session").With("session_id", id, "source", source),
		registrations: make(map[string]*registration),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// Source returns the label given to New.
func (s *Session) Source() string { return s.source }

// Register registers provider for feature under id. The id must be unique
// within the session. The options' ID and Source are filled in from the id
// and the session.
func (s *Session) Register(id string, feature features.Feature, opts features.RegistrationOptions, provider any) error {
	if id == "" {
		return docerrors.NewValidationError(docerrors.ErrCodeValidationFailed, "registration id is required").
			WithComponent("session")
	}
	if !feature.Valid() {
		return docerrors.NewValidationError(docerrors.ErrCodeUnknownFeature, fmt.Sprintf("unknown feature %q", feature)).
			WithComponent("session").
			WithFeature(string(feature))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return docerrors.NewValidationError(docerrors.ErrCodeSessionClosed, "session is closed").
			WithComponent("session")
	}
	if _, exists := s.registrations[id]; exists {
		return docerrors.NewValidationError(docerrors.ErrCodeDuplicateRegistration, fmt.Sprintf("registration %q already exists", id)).
			WithComponent("session").
			WithFeature(string(feature))
	}

	opts.ID = id
	opts.Source = s.source
	dispose, err := s.regs.Register(feature, opts, provider)
	if err != nil {
		return docerrors.NewValidationError(docerrors.ErrCodeValidationFailed, "cannot register provider").
			WithComponent("session").
			WithFeature(string(feature)).
			WithCause(err)
	}

	s.registrations[id] = &registration{
		Registration: Registration{ID: id, Feature: feature, Options: opts},
		dispose:      dispose,
	}
	s.logger.Debug(context.Background(), "Registered provider", "registration_id", id, "feature", string(feature))
	return nil
}

// Unregister disposes the registration with the given id. It reports
// whether such a registration existed.
func (s *Session) Unregister(id string) bool {
	s.mu.Lock()
	r, ok := s.registrations[id]
	if ok {
		delete(s.registrations, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	r.dispose()
	s.logger.Debug(context.Background(), "Unregistered provider", "registration_id", id, "feature", string(r.Feature))
	return true
}

// Close disposes every registration. Further registrations fail. Close is
// idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	registrations := s.registrations
	s.registrations = make(map[string]*registration)
	s.mu.Unlock()

	ids := sortedIDs(registrations)
	for _, id := range ids {
		registrations[id].dispose()
	}
	s.logger.Debug(context.Background(), "Closed session", "disposed", len(ids))
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len returns the number of live registrations.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.registrations)
}

// Registrations returns the live registrations sorted by id.
func (s *Session) Registrations() []Registration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Registration, 0, len(s.registrations))
	for _, id := range sortedIDs(s.registrations) {
		out = append(out, s.registrations[id].Registration)
	}
	return out
}

func sortedIDs(m map[string]*registration) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
