package service

import (
	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/repository"
)

// Action names an operation subject to authorization.
type Action string

const (
	ActionActivityCreate   Action = "activity:create"
	ActionActivityUpdate   Action = "activity:update"
	ActionActivityDelete   Action = "activity:delete"
	ActionScheduleGenerate Action = "schedule:generate"
	ActionEnrollmentCreate Action = "enrollment:create"
	ActionEnrollmentDelete Action = "enrollment:delete"
	ActionEnrollmentList   Action = "enrollment:list"
)

// Resource describes what an action targets. OwnerID is the user the
// enrollment belongs to, or zero for catalog resources.
type Resource struct {
	OwnerID uint64
}

// Policy decides whether an identity may perform an action.
type Policy struct{}

func NewPolicy() *Policy { return &Policy{} }

// Authorize reports whether id may perform action on res. Anonymous callers
// are never allowed.
func (p *Policy) Authorize(id model.Identity, action Action, res Resource) bool {
	if !id.Authenticated() {
		return false
	}
	switch action {
	case ActionActivityCreate, ActionActivityUpdate, ActionActivityDelete, ActionScheduleGenerate:
		return id.IsAdmin()
	case ActionEnrollmentCreate, ActionEnrollmentDelete, ActionEnrollmentList:
		return id.IsAdmin() || id.UserID == res.OwnerID
	}
	return false
}

// Check is Authorize expressed as the error taxonomy: ErrUnauthorized for an
// anonymous caller and ErrForbidden for a denied one.
func (p *Policy) Check(id model.Identity, action Action, res Resource) error {
	if !id.Authenticated() {
		return repository.ErrUnauthorized
	}
	if !p.Authorize(id, action, res) {
		return repository.ErrForbidden
	}
	return nil
}
