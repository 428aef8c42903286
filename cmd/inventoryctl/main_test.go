package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatchFromFlags(t *testing.T) {
	g := &globals{}
	cmd := newUpdateCmd(g)
	require.NoError(t, cmd.ParseFlags([]string{"--stock", "0", "--name", "Gadget"}))

	patch, err := patchFromFlags(cmd)
	require.NoError(t, err)
	require.NotNil(t, patch.Stock)
	assert.Equal(t, int64(0), *patch.Stock)
	require.NotNil(t, patch.Name)
	assert.Equal(t, "Gadget", *patch.Name)
	assert.Nil(t, patch.Price)
	assert.Nil(t, patch.Active)
	assert.False(t, patch.Empty())
}

func TestPatchFromFlagsEmpty(t *testing.T) {
	cmd := newUpdateCmd(&globals{})
	require.NoError(t, cmd.ParseFlags(nil))
	patch, err := patchFromFlags(cmd)
	require.NoError(t, err)
	assert.True(t, patch.Empty())
}

func TestParseID(t *testing.T) {
	id, err := parseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"0", "-1", "x", ""} {
		_, err := parseID(bad)
		assert.Error(t, err, bad)
	}
}

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"list", "get", "create", "update", "delete", "pending", "ack", "report", "outbox", "status", "watch"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
