package rbac

import (
	"fmt"

	"github.com/campusops/portal/internal/apperr"
	"github.com/google/uuid"
)

// Actor is the explicit identity a caller hands to every core operation.
// It is built from a resolved session plus the live role and permission rows.
type Actor struct {
	UserID      uuid.UUID
	Email       string
	RoleID      uuid.UUID
	RoleName    RoleName
	IsAdmin     bool
	Permissions []Permission
}

func (a Actor) permission(tile TileKey) (Permission, bool) {
	for _, p := range a.Permissions {
		if p.TileKey == tile {
			return p, true
		}
	}
	return Permission{}, false
}

func (a Actor) CanAccess(tile TileKey) bool {
	p, ok := a.permission(tile)
	return ok && p.CanAccess
}

// CanWrite never reports true for a tile the actor cannot see.
func (a Actor) CanWrite(tile TileKey) bool {
	p, ok := a.permission(tile)
	return ok && p.CanAccess && p.CanWrite
}

func (a Actor) RequireAccess(tile TileKey) error {
	if !a.CanAccess(tile) {
		return fmt.Errorf("%w: no access to %s", apperr.ErrPermissionDenied, tile)
	}
	return nil
}

func (a Actor) RequireWrite(tile TileKey) error {
	if !a.CanWrite(tile) {
		return fmt.Errorf("%w: no write access to %s", apperr.ErrPermissionDenied, tile)
	}
	return nil
}

func (a Actor) RequireAdmin() error {
	if !a.IsAdmin {
		return fmt.Errorf("%w: admin role required", apperr.ErrPermissionDenied)
	}
	return nil
}
