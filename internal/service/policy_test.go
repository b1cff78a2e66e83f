package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/gym-roster/internal/model"
	"github.com/iliyamo/gym-roster/internal/repository"
)

func TestPolicyAuthorize(t *testing.T) {
	p := NewPolicy()
	anon := model.Identity{}
	own := Resource{OwnerID: member.UserID}

	for _, action := range []Action{ActionActivityCreate, ActionActivityUpdate, ActionActivityDelete, ActionScheduleGenerate} {
		assert.True(t, p.Authorize(admin, action, Resource{}), action)
		assert.False(t, p.Authorize(member, action, Resource{}), action)
		assert.False(t, p.Authorize(anon, action, Resource{}), action)
	}
	for _, action := range []Action{ActionEnrollmentCreate, ActionEnrollmentDelete, ActionEnrollmentList} {
		assert.True(t, p.Authorize(member, action, own), action)
		assert.True(t, p.Authorize(admin, action, own), action)
		assert.False(t, p.Authorize(other, action, own), action)
		assert.False(t, p.Authorize(anon, action, own), action)
	}
	assert.False(t, p.Authorize(admin, Action("activity:explode"), Resource{}))
}

func TestPolicyCheck(t *testing.T) {
	p := NewPolicy()
	assert.ErrorIs(t, p.Check(model.Identity{}, ActionEnrollmentCreate, Resource{}), repository.ErrUnauthorized)
	assert.ErrorIs(t, p.Check(member, ActionActivityCreate, Resource{}), repository.ErrForbidden)
	assert.NoError(t, p.Check(admin, ActionActivityCreate, Resource{}))
}

func TestOutcomeLabels(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "invalid", Outcome(model.NewValidationError("title", "is required")))
	assert.Equal(t, "capacity_exceeded", Outcome(repository.ErrCapacityExceeded))
	assert.Equal(t, "unavailable", Outcome(repository.ErrUnavailable))
}
