package auth

// Action is an operation subject to authorization.
type Action string

const (
	ActionSubmit       Action = "submit"
	ActionView         Action = "view"
	ActionCancel       Action = "cancel"
	ActionSubscribe    Action = "subscribe"
	ActionViewModels   Action = "view_models"
	ActionManageModels Action = "manage_models"
	ActionViewStats    Action = "view_stats"
)

// HasPermission reports whether principal may perform action on a resource
// owned by resourceOwner. It is the only place authorization rules live.
func HasPermission(p Principal, action Action, resourceOwner string) bool {
	if p.Anonymous() {
		return false
	}
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleUser:
		switch action {
		case ActionViewModels:
			return true
		case ActionSubmit, ActionView, ActionCancel, ActionSubscribe:
			return resourceOwner != "" && resourceOwner == p.ID
		default:
			return false
		}
	default:
		return false
	}
}
