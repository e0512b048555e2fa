package rbac

import (
	"fmt"
	"strings"

	"github.com/campusops/portal/internal/apperr"
)

// RoleName is the unique, enumerated name of a role.
type RoleName string

// Role names
// loaded into the roles table by cmd/seeder from seed/portal.yaml
const (
	RoleDeveloper     RoleName = "DEVELOPER"      // system developer, admin
	RoleProgramOffice RoleName = "PROGRAM_OFFICE" // program office, admin
	RoleFaculty       RoleName = "FACULTY"
	RoleTA            RoleName = "TA"
	RoleStudent       RoleName = "STUDENT" // default role for auto-provisioned users
	RoleCoco          RoleName = "COCO"    // classroom coordinator
	RoleSodexo        RoleName = "SODEXO"  // facilities team
	RoleExamCell      RoleName = "EXAM_CELL"
)

var roleNames = []RoleName{
	RoleDeveloper,
	RoleProgramOffice,
	RoleFaculty,
	RoleTA,
	RoleStudent,
	RoleCoco,
	RoleSodexo,
	RoleExamCell,
}

// TileKey identifies a feature tile gated by permission.
type TileKey string

// Tile keys
const (
	TileOnboardBatch  TileKey = "onboard_batch"
	TileManageBatches TileKey = "manage_batches"
	TileTimetable     TileKey = "timetable"
	TileAttendanceHub TileKey = "attendance_hub"
	TileMaterials     TileKey = "materials"
	TileConcerns      TileKey = "concerns"
	TileLeaveRequests TileKey = "leave_requests"
	TileSodexoSupport TileKey = "sodexo_support"
	TileChangeAccess  TileKey = "change_access"
)

var tileKeys = []TileKey{
	TileOnboardBatch,
	TileManageBatches,
	TileTimetable,
	TileAttendanceHub,
	TileMaterials,
	TileConcerns,
	TileLeaveRequests,
	TileSodexoSupport,
	TileChangeAccess,
}

func RoleNames() []RoleName {
	out := make([]RoleName, len(roleNames))
	copy(out, roleNames)
	return out
}

func TileKeys() []TileKey {
	out := make([]TileKey, len(tileKeys))
	copy(out, tileKeys)
	return out
}

func (r RoleName) Valid() bool {
	for _, name := range roleNames {
		if r == name {
			return true
		}
	}
	return false
}

func (t TileKey) Valid() bool {
	for _, key := range tileKeys {
		if t == key {
			return true
		}
	}
	return false
}

// ParseRoleName accepts role names case-insensitively.
func ParseRoleName(s string) (RoleName, error) {
	name := RoleName(strings.ToUpper(strings.TrimSpace(s)))
	if !name.Valid() {
		return "", apperr.Validation("name", fmt.Sprintf("unknown role %q", s))
	}
	return name, nil
}

func ParseTileKey(s string) (TileKey, error) {
	key := TileKey(strings.ToLower(strings.TrimSpace(s)))
	if !key.Valid() {
		return "", apperr.Validation("tileKey", fmt.Sprintf("unknown tile %q", s))
	}
	return key, nil
}

func tileIndex(t TileKey) int {
	for i, key := range tileKeys {
		if key == t {
			return i
		}
	}
	return len(tileKeys)
}
