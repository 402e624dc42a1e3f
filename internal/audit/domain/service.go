package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/duesledger/pkg/db/pagination"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	// Action matches exactly, or by family when it ends in ".*"
	// (e.g. "claim.*").
	Action     string
	TargetType string
	TargetID   string
	ActorID    string
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
)
