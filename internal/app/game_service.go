package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"ifrs17-training-service/internal/domain"
)

// SessionRegistry tracks the live session per identity (in-memory, Redis
// liveness markers, etc).
type SessionRegistry interface {
	GetOrCreate(id string, create func() *Session) *Session
	Get(id string) (*Session, bool)
	Delete(id string)
}

// CatalogRepository loads the module catalog (from cache/backing store).
type CatalogRepository interface {
	GetCatalog(ctx context.Context) (domain.Catalog, error)
}

// ResultSink receives one module result per completion for authenticated
// identities. Failures are logged, never retried here.
type ResultSink interface {
	SubmitModuleResult(ctx context.Context, identity domain.Identity, result domain.ModuleResult) error
}

// TelemetrySink receives discrete named progression events.
type TelemetrySink interface {
	Emit(event domain.Event)
}

// LogTelemetry writes events to the process log.
type LogTelemetry struct{}

func (LogTelemetry) Emit(event domain.Event) {
	log.Printf("event %s user=%s payload=%v", event.Name, event.UserID, event.Payload)
}

// GameService contains the progression use cases: attach an identity, play
// through modules, and migrate guest progress after sign-up.
type GameService struct {
	sessions  SessionRegistry
	catalog   CatalogRepository
	gateway   *Gateway
	results   ResultSink
	telemetry TelemetrySink
	opts      Options
}

func NewGameService(sessions SessionRegistry, catalog CatalogRepository, gateway *Gateway, results ResultSink, telemetry TelemetrySink, opts Options) *GameService {
	return &GameService{
		sessions:  sessions,
		catalog:   catalog,
		gateway:   gateway,
		results:   results,
		telemetry: telemetry,
		opts:      opts,
	}
}

// ResolveIdentity fills in a synthesized guest when the client supplies no
// usable identity, so a session is always playable.
func (s *GameService) ResolveIdentity(identity domain.Identity) domain.Identity {
	if identity.ID == "" {
		identity.ID = fmt.Sprintf("guest_%d", time.Now().UnixNano())
		identity.Guest = true
	}
	if identity.Name == "" && identity.Guest {
		identity.Name = "Guest User"
	}
	return identity
}

// Attach creates or reuses the identity's session, restoring persisted
// progress, and returns the current state.
func (s *GameService) Attach(ctx context.Context, identity domain.Identity) (domain.Snapshot, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	created := false
	session := s.sessions.GetOrCreate(identity.ID, func() *Session {
		created = true
		return newSession(identity, catalog, s.opts, s.hooks())
	})
	if created {
		if snap, ok := s.gateway.Load(ctx, identity); ok {
			session.restoreSnapshot(snap)
		}
	}
	return session.Snapshot(), nil
}

// Detach closes the identity's session and drops it from the registry.
// All attempt timers are cancelled here, including on identity switch.
func (s *GameService) Detach(identity domain.Identity) {
	if session, ok := s.sessions.Get(identity.ID); ok {
		session.Close()
	}
	s.sessions.Delete(identity.ID)
}

func (s *GameService) session(identity domain.Identity) (*Session, error) {
	session, ok := s.sessions.Get(identity.ID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// StartModule begins a module attempt for the identity.
func (s *GameService) StartModule(_ context.Context, identity domain.Identity, moduleID int) (domain.Snapshot, error) {
	session, err := s.session(identity)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if err := session.StartModule(moduleID); err != nil {
		return domain.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// SubmitAnswer scores an option selection for the identity's active attempt.
func (s *GameService) SubmitAnswer(_ context.Context, identity domain.Identity, selected int) (domain.AnswerOutcome, error) {
	session, err := s.session(identity)
	if err != nil {
		return domain.AnswerOutcome{}, err
	}
	return session.SubmitAnswer(selected)
}

// UsePowerUp spends a consumable aid.
func (s *GameService) UsePowerUp(_ context.Context, identity domain.Identity, kind domain.PowerUpKind) (domain.PowerUpOutcome, error) {
	session, err := s.session(identity)
	if err != nil {
		return domain.PowerUpOutcome{}, err
	}
	return session.UsePowerUp(kind)
}

// Reset wipes the identity's progression and its persisted copies. The
// destructive-action confirmation is the caller's concern.
func (s *GameService) Reset(_ context.Context, identity domain.Identity) error {
	session, err := s.session(identity)
	if err != nil {
		return err
	}
	session.Reset()
	return nil
}

// DismissAuthPrompt records that a guest declined the sign-up prompt.
func (s *GameService) DismissAuthPrompt(_ context.Context, identity domain.Identity) {
	if session, ok := s.sessions.Get(identity.ID); ok {
		session.DismissAuthPrompt()
	}
}

// Elapsed reports the running attempt timer for display, in whole seconds.
func (s *GameService) Elapsed(identity domain.Identity) int {
	session, ok := s.sessions.Get(identity.ID)
	if !ok {
		return 0
	}
	return session.ElapsedSeconds()
}

// Snapshot returns the identity's current state without mutating anything.
func (s *GameService) Snapshot(identity domain.Identity) (domain.Snapshot, error) {
	session, err := s.session(identity)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// Subscribe streams the identity's progression events.
func (s *GameService) Subscribe(identity domain.Identity) (<-chan domain.Event, func(), error) {
	session, err := s.session(identity)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Migrate moves a guest's progression to a newly authenticated identity,
// once and one-directionally. Existing remote progress for the authenticated
// identity always wins; otherwise the guest snapshot is promoted with
// module 0 completed and module 1 unlocked. The guest's data is discarded on
// both paths.
func (s *GameService) Migrate(ctx context.Context, guest, authenticated domain.Identity) (domain.Snapshot, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}

	remote, found, probeErr := s.gateway.LoadRemote(ctx, authenticated)
	if probeErr != nil {
		// A failed probe is not proof the remote holds nothing. Promoting
		// the guest here could overwrite real progress, so the guest's run
		// is discarded and the authenticated identity keeps its own state.
		log.Printf("remote probe failed during migration for %s: %v", authenticated.ID, probeErr)
	}

	var promoted *domain.Snapshot
	if probeErr == nil && !found {
		if guestSession, ok := s.sessions.Get(guest.ID); ok {
			snap := guestSession.Snapshot()
			promoted = &snap
		} else if snap, ok := s.gateway.Load(ctx, guest); ok {
			promoted = &snap
		}
	}

	// Drop the guest session and its local data regardless of which side wins.
	s.Detach(guest)
	if err := s.gateway.Clear(ctx, guest); err != nil {
		log.Printf("clearing guest data for %s: %v", guest.ID, err)
	}
	s.Detach(authenticated)

	session := s.sessions.GetOrCreate(authenticated.ID, func() *Session {
		return newSession(authenticated, catalog, s.opts, s.hooks())
	})

	switch {
	case found:
		session.restoreSnapshot(remote)
	case probeErr != nil:
		if snap, ok := s.gateway.Load(ctx, authenticated); ok {
			session.restoreSnapshot(snap)
		}
	case promoted != nil:
		snap := *promoted
		snap.Identity = authenticated
		snap.PendingCompletion = nil
		snap.CompletedModules = appendUnique(snap.CompletedModules, 0)
		snap.UnlockedModules = appendUnique(appendUnique(snap.UnlockedModules, 0), 1)
		session.restoreSnapshot(snap)
		if err := s.gateway.SaveNow(ctx, session.Snapshot()); err != nil {
			log.Printf("saving migrated progress for %s: %v", authenticated.ID, err)
		}
	default:
		// Nothing to migrate: fresh state for the authenticated identity.
	}

	if s.telemetry != nil {
		s.telemetry.Emit(domain.Event{
			Name:   domain.EventGuestMigrated,
			UserID: authenticated.ID,
			Payload: map[string]any{
				"guestId":    guest.ID,
				"remoteWins": found,
			},
		})
	}
	return session.Snapshot(), nil
}

func (s *GameService) hooks() sessionHooks {
	return sessionHooks{
		save: s.gateway.Save,
		clear: func(identity domain.Identity) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.gateway.Clear(ctx, identity); err != nil {
				log.Printf("clearing progress for %s: %v", identity.ID, err)
			}
		},
		result: func(identity domain.Identity, result domain.ModuleResult) {
			if s.results == nil {
				return
			}
			// Fire-and-forget: the leaderboard collaborator owns retries.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := s.results.SubmitModuleResult(ctx, identity, result); err != nil {
					log.Printf("submitting module result for %s: %v", identity.ID, err)
				}
			}()
		},
		event: func(event domain.Event) {
			if s.telemetry != nil {
				s.telemetry.Emit(event)
			}
		},
	}
}

func appendUnique(ids []int, id int) []int {
	for _, have := range ids {
		if have == id {
			return ids
		}
	}
	return append(ids, id)
}
