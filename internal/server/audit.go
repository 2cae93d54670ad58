package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/ned1313/pdf-mirror/internal/database"
)

// logAuditEvent records an admin action. Failures to write the audit log are
// logged and never fail the request.
func (s *Server) logAuditEvent(r *http.Request, actor, action, resourceType, resourceID string, success bool, errMsg string, metadata map[string]interface{}) {
	if s.auditRepo == nil {
		return
	}

	if actor == "" {
		if claims := claimsFromContext(r.Context()); claims != nil {
			actor = claims.Username
		}
	}

	entry := &database.AdminAction{
		Actor:        nullString(actor),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   nullString(resourceID),
		IPAddress:    nullString(clientIP(r)),
		UserAgent:    nullString(r.UserAgent()),
		Success:      success,
		ErrorMessage: nullString(errMsg),
	}

	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			entry.Metadata = nullString(string(data))
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()

	if err := s.auditRepo.Log(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", "action", action, "error", err)
	}
}

// clientIP returns the request's remote host. With BehindProxy the RealIP
// middleware has already replaced RemoteAddr with the forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
