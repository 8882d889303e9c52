package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/webitel/im-chat-core/internal/domain/model"
)

type enricherMiddleware struct {
	next   Enricher
	logger *slog.Logger
}

func (m *enricherMiddleware) ResolvePeers(ctx context.Context, from, to model.Peer, domainID int32) (model.Peer, model.Peer, error) {
	start := time.Now()

	// Call the original implementation
	resFrom, resTo, err := m.next.ResolvePeers(ctx, from, to, domainID)

	// [OBSERVABILITY] Log the outcome without polluting the main service
	if err != nil {
		m.logger.Error("PEER_ENRICHMENT_FAILED", "err", err, "duration", time.Since(start))
	} else {
		m.logger.Debug("PEER_ENRICHMENT_SUCCESS", "duration", time.Since(start))
	}

	return resFrom, resTo, err
}

func (m *enricherMiddleware) ResolvePeer(ctx context.Context, peer model.Peer, domainID int32) (model.Peer, error) {
	return m.next.ResolvePeer(ctx, peer, domainID)
}
