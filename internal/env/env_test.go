package env

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	input := `# ccxcon client
server=http://localhost:8080

export client_id=mitx
client_secret="s3cr et"
`
	v := make(map[string]string)
	require.NoError(t, NewDecoder(strings.NewReader(input)).Decode(v))

	assert.Equal(t, map[string]string{
		"server":        "http://localhost:8080",
		"client_id":     "mitx",
		"client_secret": "s3cr et",
	}, v)
}

func TestDecodeInvalidLine(t *testing.T) {
	v := make(map[string]string)
	err := NewDecoder(strings.NewReader("server\n")).Decode(v)
	assert.ErrorContains(t, err, "line 1")
}

func TestEncodeSortsAndQuotes(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, NewEncoder(buf).Encode(map[string]string{
		"token":  "abc",
		"server": "http://localhost:8080",
		"name":   "spring cohort",
	}))

	assert.Equal(t, "name=\"spring cohort\"\nserver=http://localhost:8080\ntoken=abc\n", buf.String())

	v := make(map[string]string)
	require.NoError(t, NewDecoder(buf).Decode(v))
	assert.Equal(t, "spring cohort", v["name"])
}
