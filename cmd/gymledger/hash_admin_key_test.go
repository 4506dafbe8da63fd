package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/smallbiznis/gymledger/internal/adminkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAdminKeyFromStdin(t *testing.T) {
	cmd := hashAdminKeyCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader("front-desk-key\n"))
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	encoded := strings.TrimSpace(out.String())
	assert.True(t, adminkey.Matches("front-desk-key", encoded))
}

func TestReadAdminKeyRejectsBlank(t *testing.T) {
	_, err := readAdminKey(strings.NewReader("  \n"), nil)
	require.Error(t, err)

	key, err := readAdminKey(nil, []string{" abc "})
	require.NoError(t, err)
	assert.Equal(t, "abc", key)
}
