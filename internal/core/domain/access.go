package domain

// PermissionSet holds the CRUD/approve flags of one module
type PermissionSet struct {
	Module     Module `json:"module"`
	CanCreate  bool   `json:"can_create"`
	CanRead    bool   `json:"can_read"`
	CanUpdate  bool   `json:"can_update"`
	CanDelete  bool   `json:"can_delete"`
	CanApprove bool   `json:"can_approve"`
}

// Allows reports whether the set grants action
func (p PermissionSet) Allows(action Action) bool {
	switch action {
	case ActionCreate:
		return p.CanCreate
	case ActionRead:
		return p.CanRead
	case ActionUpdate:
		return p.CanUpdate
	case ActionDelete:
		return p.CanDelete
	case ActionApprove:
		return p.CanApprove
	}
	return false
}

// RoleGrant is the role half of an assignment
type RoleGrant struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Level       int             `json:"level"`
	Permissions []PermissionSet `json:"permissions"`
}

// Assignment binds a role to a business unit for one user
type Assignment struct {
	BusinessUnitID uint      `json:"business_unit_id"`
	Role           RoleGrant `json:"role"`
}

// AccessContext is the caller identity passed explicitly into every service operation.
// It is projected from the signed session token and never read from global state.
type AccessContext struct {
	UserID      uint         `json:"user_id"`
	Username    string       `json:"username"`
	Assignments []Assignment `json:"assignments"`
}

// InUnit returns the assignments the caller holds in a business unit
func (a *AccessContext) InUnit(businessUnitID uint) []Assignment {
	if a == nil {
		return nil
	}
	var out []Assignment
	for _, as := range a.Assignments {
		if as.BusinessUnitID == businessUnitID {
			out = append(out, as)
		}
	}
	return out
}

// HasAssignment reports whether the caller is assigned to the business unit
func (a *AccessContext) HasAssignment(businessUnitID uint) bool {
	return len(a.InUnit(businessUnitID)) > 0
}

// HasRole reports whether the caller holds roleID in the business unit
func (a *AccessContext) HasRole(businessUnitID, roleID uint) bool {
	for _, as := range a.InUnit(businessUnitID) {
		if as.Role.ID == roleID {
			return true
		}
	}
	return false
}

// MaxLevel returns the highest role level held in the business unit, -1 when none
func (a *AccessContext) MaxLevel(businessUnitID uint) int {
	level := -1
	for _, as := range a.InUnit(businessUnitID) {
		if as.Role.Level > level {
			level = as.Role.Level
		}
	}
	return level
}

// RoleIDs returns the role ids held in the business unit
func (a *AccessContext) RoleIDs(businessUnitID uint) []uint {
	var ids []uint
	for _, as := range a.InUnit(businessUnitID) {
		ids = append(ids, as.Role.ID)
	}
	return ids
}

// BusinessUnitIDs returns every business unit the caller is assigned to
func (a *AccessContext) BusinessUnitIDs() []uint {
	if a == nil {
		return nil
	}
	seen := make(map[uint]bool)
	var ids []uint
	for _, as := range a.Assignments {
		if !seen[as.BusinessUnitID] {
			seen[as.BusinessUnitID] = true
			ids = append(ids, as.BusinessUnitID)
		}
	}
	return ids
}

// Can reports whether any role held in the business unit grants action on module
func (a *AccessContext) Can(businessUnitID uint, module Module, action Action) bool {
	for _, as := range a.InUnit(businessUnitID) {
		for _, p := range as.Role.Permissions {
			if p.Module == module && p.Allows(action) {
				return true
			}
		}
	}
	return false
}

// Authorize checks the assignment first and then the module permission
func (a *AccessContext) Authorize(businessUnitID uint, module Module, action Action) error {
	if !a.HasAssignment(businessUnitID) {
		return ErrNoAssignment
	}
	if !a.Can(businessUnitID, module, action) {
		return ErrForbidden
	}
	return nil
}

// RequireAssignment returns ErrNoAssignment unless the caller is assigned to the business unit
func (a *AccessContext) RequireAssignment(businessUnitID uint) error {
	if !a.HasAssignment(businessUnitID) {
		return ErrNoAssignment
	}
	return nil
}
