// Package authz decides which identities may act on a note.
package authz

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// Can reports whether requesterID may perform action on a note owned by
// ownerID. ownerID is ignored for read and create.
func Can(action Action, ownerID, requesterID string) bool {
	switch action {
	case ActionRead:
		return true
	case ActionCreate:
		return requesterID != ""
	case ActionDelete:
		return CanDelete(ownerID, requesterID)
	default:
		return false
	}
}

// CanDelete is true iff the requester is the note's recorded owner.
func CanDelete(ownerID, requesterID string) bool {
	return ownerID != "" && ownerID == requesterID
}
