package rbac

import (
	"sort"

	"github.com/campusops/portal/internal/apperr"
)

// Permission is one row of the matrix: a role's rights on a single tile.
// CanWrite implies CanAccess.
type Permission struct {
	TileKey   TileKey `yaml:"tile_key" json:"tileKey"`
	CanAccess bool    `yaml:"can_access" json:"canAccess"`
	CanWrite  bool    `yaml:"can_write" json:"canWrite"`
}

func (p Permission) Validate() error {
	if !p.TileKey.Valid() {
		return apperr.Validation("tileKey", "unknown tile "+string(p.TileKey))
	}
	if p.CanWrite && !p.CanAccess {
		return apperr.Validation("canWrite", "write access requires canAccess on "+string(p.TileKey))
	}
	return nil
}

// TileGrant is the projection handed to clients for rendering tiles.
type TileGrant struct {
	TileKey  TileKey `json:"tileKey"`
	CanWrite bool    `json:"canWrite"`
}

// AllowedTiles keeps accessible tiles only, in tile declaration order.
func AllowedTiles(perms []Permission) []TileGrant {
	grants := make([]TileGrant, 0, len(perms))
	for _, p := range perms {
		if !p.CanAccess {
			continue
		}
		grants = append(grants, TileGrant{TileKey: p.TileKey, CanWrite: p.CanWrite})
	}
	sort.SliceStable(grants, func(i, j int) bool {
		return tileIndex(grants[i].TileKey) < tileIndex(grants[j].TileKey)
	})
	return grants
}
