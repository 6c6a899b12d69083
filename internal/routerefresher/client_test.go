package routerefresher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoutesPayloadMissingTimestamp(t *testing.T) {
	_, err := parseRoutesPayload(strings.NewReader(`{"a:1":[]}`))
	assert.Error(t, err)
}

func TestParseRoutesPayloadSeparatesAuthoritiesFromTimestamp(t *testing.T) {
	p, err := parseRoutesPayload(strings.NewReader(
		`{"router:8080":[{"hostname":"h","port":1,"secure_connection":true}],"timestamp":42}`))
	assert.NoError(t, err)
	assert.EqualValues(t, 42, p.Timestamp)
	assert.Len(t, p.Authorities, 1)
	assert.Equal(t, "h", p.Authorities["router:8080"][0].Hostname)
	assert.True(t, p.Authorities["router:8080"][0].SecureConnection)
}
