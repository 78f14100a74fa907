package model

import (
	"strings"

	"mes-execution-backend/internal/apperr"
)

// Actor identifies the tenant and user on whose behalf an operation runs.
type Actor struct {
	TenantID string `json:"tenantId"`
	UserID   string `json:"userId"`
}

// Validate fails when either identity is blank.
func (a Actor) Validate() error {
	if strings.TrimSpace(a.TenantID) == "" {
		return apperr.Validation("tenantId", "tenant id is required")
	}
	if strings.TrimSpace(a.UserID) == "" {
		return apperr.Validation("userId", "user id is required")
	}
	return nil
}
