package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ayo6706/poolcredit/internal/repository"
)

// auditEntry is one line of the trail. Empty states are stored as NULL.
type auditEntry struct {
	EntityType string
	EntityID   string
	Actor      string
	Action     string
	PrevState  string
	NextState  string
	Metadata   map[string]any
}

// AuditService appends to the audit trail inside the caller's transaction, so an
// entry exists exactly when the state change it describes was committed.
type AuditService struct {
	store QueryStore
}

func NewAuditService(store QueryStore) *AuditService {
	return &AuditService{store: store}
}

func (s *AuditService) Record(ctx context.Context, qtx repository.Querier, e auditEntry) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata for %s %s: %w", e.EntityType, e.Action, err)
		}
		metadata = raw
	}
	if _, err := qtx.InsertAuditLog(ctx, repository.InsertAuditLogParams{
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Actor:      optionalText(e.Actor),
		Action:     e.Action,
		PrevState:  optionalText(e.PrevState),
		NextState:  optionalText(e.NextState),
		Metadata:   metadata,
	}); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func optionalText(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
