package httpx

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimitOffset(t *testing.T) {
	limit, offset, err := ParseLimitOffset(url.Values{}, 20, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(20), limit)
	assert.Equal(t, int64(0), offset)

	limit, offset, err = ParseLimitOffset(url.Values{"limit": {"500"}, "offset": {"40"}}, 20, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), limit)
	assert.Equal(t, int64(40), offset)

	_, _, err = ParseLimitOffset(url.Values{"limit": {"0"}}, 20, 100)
	assert.Error(t, err)
	_, _, err = ParseLimitOffset(url.Values{"offset": {"-1"}}, 20, 100)
	assert.Error(t, err)
}

func TestDecodeJSONRejectsUnknownAndTrailing(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	require.NoError(t, DecodeJSON(strings.NewReader(`{"name":"Ayşe"}`), &v))
	assert.Equal(t, "Ayşe", v.Name)

	assert.Error(t, DecodeJSON(strings.NewReader(`{"nome":"x"}`), &v))
	assert.Error(t, DecodeJSON(strings.NewReader(`{"name":"x"}{}`), &v))
}

func TestQueryDate(t *testing.T) {
	d, err := QueryDate(url.Values{"from": {" 2024-01-31 "}}, "from")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-31", d)

	d, err = QueryDate(url.Values{}, "from")
	require.NoError(t, err)
	assert.Empty(t, d)

	_, err = QueryDate(url.Values{"from": {"31/01/2024"}}, "from")
	assert.Error(t, err)
}
