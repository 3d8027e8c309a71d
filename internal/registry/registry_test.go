package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binwatch/internal/models"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Open(":memory:")
	require.NoError(t, err)
	return reg
}

func TestUpsertCreatesAndOverwrites(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Upsert("phone-1", "conn-a", true))
	require.NoError(t, reg.Upsert("phone-1", "conn-b", true))

	sessions, err := reg.ListAll()
	require.NoError(t, err)
	require.Len(t, sessions, 1, "upsert must not duplicate rows")
	assert.Equal(t, "conn-b", sessions[0].ConnectionID)
	assert.True(t, sessions[0].IsOpen)
}

func TestIsOpenUnknownDeviceIsClosed(t *testing.T) {
	reg := newTestRegistry(t)

	open, err := reg.IsOpen("never-seen")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestListOpenClosedPartition(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Upsert("a", "conn-a", true))
	require.NoError(t, reg.Upsert("b", "conn-b", false))
	require.NoError(t, reg.Upsert("c", "conn-c", true))

	open, err := reg.ListOpen()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, open)

	closed, err := reg.ListClosed()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b"}, closed)
}

func TestMarkClosedByConnection(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Upsert("a", "conn-a", true))
	require.NoError(t, reg.MarkClosedByConnection("conn-a"))

	open, err := reg.IsOpen("a")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestMarkClosedUnknownConnectionIsNoop(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Upsert("a", "conn-a", true))
	require.NoError(t, reg.MarkClosedByConnection("stale-conn"))

	sessions, err := reg.ListAll()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].IsOpen, "no row may be altered")
}

func TestUpsertDenormalizesNewestToken(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.SaveToken("a", "tok-old"))
	require.NoError(t, reg.SaveToken("a", "tok-new"))
	require.NoError(t, reg.Upsert("a", "conn-a", true))

	sessions, err := reg.ListAll()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "tok-new", sessions[0].PushToken)
}

func TestUpsertWithoutTokenLeavesEmpty(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Upsert("a", "conn-a", true))
	sessions, err := reg.ListAll()
	require.NoError(t, err)
	assert.Empty(t, sessions[0].PushToken)
}

func TestSaveTokenInsertIfAbsent(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.SaveToken("a", "tok-1"))
	require.NoError(t, reg.SaveToken("a", "tok-1"))
	require.NoError(t, reg.SaveToken("a", "tok-2"))
	require.NoError(t, reg.SaveToken("b", "tok-1"))

	tokens, err := reg.AllTokens()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tok-1", "tok-2"}, tokens)
}

func TestSessionTokens(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.SaveToken("a", "tok-a"))
	require.NoError(t, reg.Upsert("a", "conn-a", false))
	require.NoError(t, reg.Upsert("b", "conn-b", false)) // no token

	tokens, err := reg.SessionTokens([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a"}, tokens)

	tokens, err = reg.SessionTokens(nil)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestListAllNewestFirst(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Upsert("first", "conn-1", true))
	require.NoError(t, reg.Upsert("second", "conn-2", true))
	require.NoError(t, reg.Upsert("first", "conn-3", false)) // touch again

	sessions, err := reg.ListAll()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "first", sessions[0].DeviceID)
}

func TestSessionModelRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Upsert("a", "conn-a", true))

	var session models.Session
	require.NoError(t, reg.db.Where("device_id = ?", "a").First(&session).Error)
	assert.False(t, session.LastUpdate.IsZero())
}
