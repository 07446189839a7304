package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/breaker"
	"github.com/flowtidehq/flowtide/directory"
	"github.com/flowtidehq/flowtide/job"
)

// SyncHandler pulls integration data into the snapshot tables. The
// outbound call goes through the breaker matching the integration's
// kind, so a degraded tracker API cannot burn the retry budget of
// every sync job at once.
type SyncHandler struct {
	client   SyncClient
	dir      directory.Store
	breakers *breaker.Registry
	logger   *slog.Logger
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(client SyncClient, dir directory.Store, breakers *breaker.Registry, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{client: client, dir: dir, breakers: breakers, logger: logger}
}

// HandleSync runs one sync for the integration named in the payload.
func (h *SyncHandler) HandleSync(ctx context.Context, p job.SyncPayload) error {
	integ, err := h.lookupIntegration(ctx, p.OrgID, p.IntegrationID)
	if err != nil {
		return err
	}
	if !integ.Connected() {
		h.logger.Info("skipping sync for disconnected integration",
			slog.String("org_id", p.OrgID),
			slog.String("integration_id", p.IntegrationID),
		)
		return nil
	}

	dep, err := dependencyFor(integ.Kind)
	if err != nil {
		return err
	}

	var result SyncResult
	br := h.breakers.Get(dep)
	err = br.Execute(ctx, func(ctx context.Context) error {
		var syncErr error
		result, syncErr = h.client.Sync(ctx, p.OrgID, p.IntegrationID, p.Provider)
		return syncErr
	})
	if err != nil {
		return fmt.Errorf("sync %s/%s: %w", p.Provider, p.IntegrationID, err)
	}

	h.logger.Info("integration synced",
		slog.String("org_id", p.OrgID),
		slog.String("provider", p.Provider),
		slog.Int("items_synced", result.ItemsSynced),
		slog.Int("skipped", result.Skipped),
	)
	return nil
}

func (h *SyncHandler) lookupIntegration(ctx context.Context, orgID, integrationID string) (*directory.Integration, error) {
	integrations, err := h.dir.ListIntegrations(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list integrations for %s: %w", orgID, err)
	}
	for _, integ := range integrations {
		if integ.ID == integrationID {
			return integ, nil
		}
	}
	// A deleted integration cannot come back; retrying is pointless.
	return nil, fmt.Errorf("integration %s not found for %s: %w",
		integrationID, orgID, flowtide.ErrPermanent)
}

// dependencyFor maps an integration kind to its breaker name. Chat
// integrations are delivery targets, not sync sources.
func dependencyFor(kind directory.IntegrationKind) (string, error) {
	switch kind {
	case directory.KindTracker:
		return breaker.DepTracker, nil
	case directory.KindCodeHost:
		return breaker.DepCodeHost, nil
	default:
		return "", fmt.Errorf("integration kind %q is not syncable: %w",
			kind, flowtide.ErrPermanent)
	}
}
