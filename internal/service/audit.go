package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spinforge/settlement/internal/models"
	"github.com/spinforge/settlement/internal/repository"
)

// AuditService writes immutable audit trail entries.
type AuditService struct{}

func NewAuditService() *AuditService {
	return &AuditService{}
}

// Write stores a single immutable audit record inside the caller's unit of
// work.
func (s *AuditService) Write(ctx context.Context, q repository.Querier, entityType string, entityID uuid.UUID, actorID *uuid.UUID, action, prevState, nextState string, metadata models.Metadata) error {
	record := &models.AuditRecord{
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Action:     action,
		PrevState:  prevState,
		NextState:  nextState,
		Metadata:   metadata,
	}
	if err := q.InsertAuditRecord(ctx, record); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
