package cfg

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	values, err := Get(path)
	require.NoError(t, err)
	assert.Empty(t, values)

	require.NoError(t, Update(path, func(m map[string]string) {
		m["server"] = "https://ccxcon.example.com"
		m["client_id"] = "mitx"
	}))
	require.NoError(t, Update(path, func(m map[string]string) {
		delete(m, "client_id")
		m["token"] = "abc"
	}))

	values, err = Get(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"server": "https://ccxcon.example.com",
		"token":  "abc",
	}, values)
}
