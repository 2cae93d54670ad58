package database

import (
	"context"
	"fmt"
	"time"
)

// AuditRepository provides database access for admin action logs
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `id, actor, action, resource_type, resource_id, ip_address, user_agent,
	       success, error_message, metadata, created_at`

// Log creates a new audit log entry
func (r *AuditRepository) Log(ctx context.Context, action *AdminAction) error {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO admin_actions (actor, action, resource_type, resource_id, ip_address,
		                           user_agent, success, error_message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.conn.ExecContext(ctx, query,
		action.Actor,
		action.Action,
		action.ResourceType,
		action.ResourceID,
		action.IPAddress,
		action.UserAgent,
		action.Success,
		action.ErrorMessage,
		action.Metadata,
		action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get action ID: %w", err)
	}

	action.ID = id
	return nil
}

// List retrieves audit log entries, newest first
func (r *AuditRepository) List(ctx context.Context, limit, offset int) ([]*AdminAction, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM admin_actions
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	return r.list(ctx, query, limit, offset)
}

// ListByResource retrieves all actions for a resource
func (r *AuditRepository) ListByResource(ctx context.Context, resourceType, resourceID string, limit, offset int) ([]*AdminAction, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM admin_actions
		WHERE resource_type = ? AND resource_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	return r.list(ctx, query, resourceType, resourceID, limit, offset)
}

// ListByActor retrieves all actions performed by one admin
func (r *AuditRepository) ListByActor(ctx context.Context, actor string, limit, offset int) ([]*AdminAction, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM admin_actions
		WHERE actor = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	return r.list(ctx, query, actor, limit, offset)
}

func (r *AuditRepository) list(ctx context.Context, query string, args ...any) ([]*AdminAction, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var actions []*AdminAction
	for rows.Next() {
		var action AdminAction
		if err := rows.Scan(
			&action.ID,
			&action.Actor,
			&action.Action,
			&action.ResourceType,
			&action.ResourceID,
			&action.IPAddress,
			&action.UserAgent,
			&action.Success,
			&action.ErrorMessage,
			&action.Metadata,
			&action.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		actions = append(actions, &action)
	}

	return actions, rows.Err()
}

// DeleteOlderThan deletes audit logs older than the specified time
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.conn.ExecContext(ctx, `DELETE FROM admin_actions WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old actions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}
