package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/webitel/im-chat-core/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

// Enricher defines the high-level contract for participant data augmentation.
type Enricher interface {
	// ResolvePeers performs concurrent enrichment for multiple participants.
	ResolvePeers(ctx context.Context, from, to model.Peer, domainID int32) (model.Peer, model.Peer, error)
	// ResolvePeer handles the logic for a single participant based on their type.
	ResolvePeer(ctx context.Context, peer model.Peer, domainID int32) (model.Peer, error)
}

// ContactResolver looks up directory identity (display name, subject,
// issuer) for a single peer. Implemented by internal/store against the
// directory table; kept as a narrow interface so enrichment never couples
// to the storage engine directly.
type ContactResolver interface {
	Resolve(ctx context.Context, id uuid.UUID, domainID int32) (name, sub, issuer string, ok bool)
}

type PeerEnricher struct {
	contacts ContactResolver
	cache    *lru.Cache[string, model.Peer]
}

// NewPeerEnricherService provides a thread-safe service with an internal LRU cache.
func NewPeerEnricherService(contacts ContactResolver) *PeerEnricher {
	// [MEMORY_MANAGEMENT] Pre-allocated LRU cache to minimize GC pressure and store "hot" identities.
	cache, _ := lru.New[string, model.Peer](10000)

	return &PeerEnricher{
		contacts: contacts,
		cache:    cache,
	}
}

// ResolvePeers executes parallel enrichment flows for 'from' and 'to' peers.
// [CONCURRENCY_OPTIMIZATION] Uses errgroup to ensure both lookups complete or fail together.
func (e *PeerEnricher) ResolvePeers(ctx context.Context, from, to model.Peer, domainID int32) (model.Peer, model.Peer, error) {
	g, gCtx := errgroup.WithContext(ctx)

	// Clone peers to avoid side effects during concurrent execution
	resFrom := from
	resTo := to

	g.Go(func() error {
		var err error
		resFrom, err = e.ResolvePeer(gCtx, from, domainID)
		return err
	})

	g.Go(func() error {
		var err error
		resTo, err = e.ResolvePeer(gCtx, to, domainID)
		return err
	})

	if err := g.Wait(); err != nil {
		return from, to, fmt.Errorf("parallel enrichment failed: %w", err)
	}

	return resFrom, resTo, nil
}

// ResolvePeer orchestrates the cache-aside strategy and polymorphic dispatching.
func (e *PeerEnricher) ResolvePeer(ctx context.Context, peer model.Peer, domainID int32) (model.Peer, error) {
	// [IDENTITY_GUARD] Ensure we have a valid ID before proceeding
	if peer.ID == uuid.Nil {
		return peer, nil
	}

	// [HOT_PATH] Check LRU cache first to avoid unnecessary network/logic overhead
	cacheKey := peer.ID.String()
	if cached, ok := e.cache.Get(cacheKey); ok {
		return cached, nil
	}

	var enriched model.Peer

	// [POLYMORPHIC_DISPATCH] Route enrichment logic based on PeerType
	switch peer.Type {
	case model.PeerUser, model.PeerBot:
		enriched = e.enrichFromDirectory(ctx, peer, domainID)

	case model.PeerGroup:
		// [STUB] Future logic for Chat Groups/Rooms metadata
		enriched = e.mockEnrich(peer, "Peer Group")

	case model.PeerChannel:
		// [STUB] Future logic for Broadcast Channels
		enriched = e.mockEnrich(peer, "Peer Channel")

	default:
		// [FALLBACK] Return original peer if type is unknown or doesn't require enrichment
		enriched = peer
	}

	e.cache.Add(cacheKey, enriched)

	return enriched, nil
}

// enrichFromDirectory resolves identity metadata through the injected
// ContactResolver, falling back to the unenriched peer on a miss so a
// resolver outage never stalls message delivery.
func (e *PeerEnricher) enrichFromDirectory(ctx context.Context, peer model.Peer, domainID int32) model.Peer {
	if e.contacts == nil {
		return peer
	}

	name, sub, issuer, ok := e.contacts.Resolve(ctx, peer.ID, domainID)
	if !ok {
		return peer
	}

	peer.Name = name
	peer.Sub = sub
	peer.Issuer = issuer
	return peer
}

// mockEnrich is a helper for types not backed by a directory lookup.
func (e *PeerEnricher) mockEnrich(peer model.Peer, placeholder string) model.Peer {
	if peer.Name == "" {
		peer.Name = fmt.Sprintf("%s (%s)", placeholder, peer.ID.String()[:8])
	}
	return peer
}
