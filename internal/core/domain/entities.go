package domain

// RequestStatus is the lifecycle state of an approval request
type RequestStatus string

const (
	RequestPending    RequestStatus = "PENDING"
	RequestInProgress RequestStatus = "IN_PROGRESS"
	RequestApproved   RequestStatus = "APPROVED"
	RequestRejected   RequestStatus = "REJECTED"
	RequestCancelled  RequestStatus = "CANCELLED"
	RequestOverridden RequestStatus = "OVERRIDDEN"
)

// IsTerminal reports whether no further transition is allowed
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestApproved, RequestRejected, RequestCancelled, RequestOverridden:
		return true
	}
	return false
}

// ActiveRequestStatuses are the non-terminal statuses
var ActiveRequestStatuses = []RequestStatus{RequestPending, RequestInProgress}

// ResponseStatus is the decision recorded at a step
type ResponseStatus string

const (
	ResponseApproved ResponseStatus = "APPROVED"
	ResponseRejected ResponseStatus = "REJECTED"
)

// Valid reports whether s is a known decision
func (s ResponseStatus) Valid() bool {
	return s == ResponseApproved || s == ResponseRejected
}

// EntityType tags what kind of thing an approval request governs
type EntityType string

const (
	EntityPropertyReturn   EntityType = "PROPERTY_RETURN"
	EntityPropertyRelease  EntityType = "PROPERTY_RELEASE"
	EntityPropertyTurnover EntityType = "PROPERTY_TURNOVER"
	EntityPropertyUpdate   EntityType = "PROPERTY_UPDATE"
	EntityDocument         EntityType = "DOCUMENT"
	EntityOther            EntityType = "OTHER"
)

// EntityTypes lists every accepted entity type
var EntityTypes = []EntityType{
	EntityPropertyReturn,
	EntityPropertyRelease,
	EntityPropertyTurnover,
	EntityPropertyUpdate,
	EntityDocument,
	EntityOther,
}

// Valid reports whether t is a known entity type
func (t EntityType) Valid() bool {
	for _, et := range EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}

// Module is a permission scope
type Module string

const (
	ModuleProperty       Module = "PROPERTY"
	ModuleRPT            Module = "RPT"
	ModuleUserManagement Module = "USER_MANAGEMENT"
	ModuleApproval       Module = "APPROVAL"
	ModuleDocuments      Module = "DOCUMENTS"
	ModuleReports        Module = "REPORTS"
	ModuleAudit          Module = "AUDIT"
	ModuleBusinessUnits  Module = "BUSINESS_UNITS"
	ModuleRoles          Module = "ROLES"
	ModuleSystem         Module = "SYSTEM"
)

// Modules lists every permission module
var Modules = []Module{
	ModuleProperty,
	ModuleRPT,
	ModuleUserManagement,
	ModuleApproval,
	ModuleDocuments,
	ModuleReports,
	ModuleAudit,
	ModuleBusinessUnits,
	ModuleRoles,
	ModuleSystem,
}

// Valid reports whether m is a known module
func (m Module) Valid() bool {
	for _, mod := range Modules {
		if mod == m {
			return true
		}
	}
	return false
}

// Action is a permission flag on a module
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionRead    Action = "READ"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionApprove Action = "APPROVE"
)

// Role levels
const (
	LevelStaff            = 0
	LevelSupervisor       = 1
	LevelManager          = 2
	LevelDirector         = 3
	LevelManagingDirector = 4
)

// ValidLevel reports whether level is within the role hierarchy
func ValidLevel(level int) bool {
	return level >= LevelStaff && level <= LevelManagingDirector
}

// PropertyStatus is the lifecycle state of a property
type PropertyStatus string

const (
	PropertyAvailable   PropertyStatus = "AVAILABLE"
	PropertyReleased    PropertyStatus = "RELEASED"
	PropertyBankCustody PropertyStatus = "BANK_CUSTODY"
	PropertyUnderReview PropertyStatus = "UNDER_REVIEW"
	PropertyTurnedOver  PropertyStatus = "TURNED_OVER"
	PropertyReturned    PropertyStatus = "RETURNED"
	PropertySold        PropertyStatus = "SOLD"
)

// MovementStatus is the transactional status of a movement record
type MovementStatus string

const (
	MovementPending    MovementStatus = "PENDING"
	MovementApproved   MovementStatus = "APPROVED"
	MovementInProgress MovementStatus = "IN_PROGRESS"
	MovementCompleted  MovementStatus = "COMPLETED"
	MovementCancelled  MovementStatus = "CANCELLED"
)

// IsTerminal reports whether the movement is finished
func (s MovementStatus) IsTerminal() bool {
	return s == MovementCompleted || s == MovementCancelled
}

// MovementKind names a property movement
type MovementKind string

const (
	MovementReturn   MovementKind = "RETURN"
	MovementRelease  MovementKind = "RELEASE"
	MovementTurnover MovementKind = "TURNOVER"
)

// Audit actions
const (
	AuditCreate   = "CREATE"
	AuditUpdate   = "UPDATE"
	AuditDelete   = "DELETE"
	AuditApprove  = "APPROVE"
	AuditReject   = "REJECT"
	AuditOverride = "OVERRIDE"
	AuditCancel   = "CANCEL"
	AuditComplete = "COMPLETE"
)

// Audit entity names
const (
	AuditEntityWorkflow   = "ApprovalWorkflow"
	AuditEntityRequest    = "ApprovalRequest"
	AuditEntityRole       = "Role"
	AuditEntityProperty   = "Property"
	AuditEntityMovement   = "PropertyMovement"
	AuditEntityAssignment = "UserAssignment"
	AuditEntityUser       = "User"
)

// RequestEvent is published after an approval request transition commits
type RequestEvent struct {
	Action           string        `json:"action"`
	RequestID        uint          `json:"request_id"`
	WorkflowID       uint          `json:"workflow_id"`
	BusinessUnitID   uint          `json:"business_unit_id"`
	EntityType       EntityType    `json:"entity_type"`
	EntityID         string        `json:"entity_id"`
	PreviousStatus   RequestStatus `json:"previous_status,omitempty"`
	Status           RequestStatus `json:"status"`
	CurrentStepOrder int           `json:"current_step_order"`
	NextRoleID       *uint         `json:"next_role_id,omitempty"`
	ActorID          uint          `json:"actor_id"`
	IsOverride       bool          `json:"is_override"`
}

// RequestObserver receives committed request events
type RequestObserver interface {
	OnRequestEvent(event RequestEvent)
}
