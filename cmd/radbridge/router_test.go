package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Commands that register a same-named flag must each own their variable;
// a shared StringVar target would take whichever default registered last.
func TestBindTypeDefaultsAreIndependent(t *testing.T) {
	hostsFlag := hostsBindCmd.Flags().Lookup("type")
	require.NotNil(t, hostsFlag)
	assert.Equal(t, "bypassed", hostsFlag.DefValue)
	assert.Equal(t, "bypassed", hostsBindType)

	addFlag := bindingsAddCmd.Flags().Lookup("type")
	require.NotNil(t, addFlag)
	assert.Equal(t, "regular", addFlag.DefValue)
	assert.Equal(t, "regular", bindingAddType)
}

func TestBindTypeFlagsDoNotAlias(t *testing.T) {
	require.NoError(t, hostsBindCmd.Flags().Set("type", "blocked"))
	defer hostsBindCmd.Flags().Set("type", "bypassed")

	assert.Equal(t, "blocked", hostsBindType)
	assert.Equal(t, "regular", bindingAddType)
}
