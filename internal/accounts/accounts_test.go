package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidar/internal/common"
)

func TestCreateAndLookup(t *testing.T) {
	s := NewStore()

	alice, err := s.Create("alice", common.RoleManager)
	require.NoError(t, err)
	assert.Equal(t, int64(1), alice.ID)

	_, err = s.Create("alice", common.RoleUser)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = s.Create("  ", common.RoleUser)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	got, ok := s.ByName("alice")
	require.True(t, ok)
	assert.Equal(t, alice.ID, got.ID)
}

func TestDeleteProtectsLastManager(t *testing.T) {
	s := NewStore()
	mgr, err := s.Create("admin", common.RoleManager)
	require.NoError(t, err)
	usr, err := s.Create("bob", common.RoleUser)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Delete(mgr.ID), common.ErrLastManager)

	// A second manager unblocks deletion of the first.
	mgr2, err := s.Create("admin2", common.RoleManager)
	require.NoError(t, err)
	require.NoError(t, s.Delete(mgr.ID))
	assert.Equal(t, 1, s.ManagerCount())

	require.NoError(t, s.Delete(usr.ID))
	assert.ErrorIs(t, s.Delete(usr.ID), common.ErrUnknownUser)
	assert.ErrorIs(t, s.Delete(mgr2.ID), common.ErrLastManager)
}

func TestImportPreservesNextID(t *testing.T) {
	s := NewStore()
	s.Import([]User{
		{ID: 4, Username: "admin", Role: common.RoleManager},
	})

	user, err := s.Create("carol", common.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, int64(5), user.ID)
}
