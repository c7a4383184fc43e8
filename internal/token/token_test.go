package token

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintParseRoundTrip(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	raw, err := Mint("sess-1", now)
	require.NoError(t, err)

	p, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", p.SessionID)
	assert.Equal(t, now.UnixMilli(), p.MintedAt.UnixMilli())
	assert.Len(t, p.Suffix, SuffixBytes*2)
}

func TestMintRequiresSession(t *testing.T) {
	_, err := Mint("", time.Now())
	require.Error(t, err)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"ATTEND",
		"ATTEND:sess-1",
		"ATTEND:sess-1:1700000000000",
		"ATTEND:sess-1:notmillis:abcdef",
		"ATTEND:sess-1:-5:abcdef",
		"ATTEND::1700000000000:abcdef",
		"ATTEND:sess-1:1700000000000:",
		"OTHER:sess-1:1700000000000:abcdef",
		"ATTEND:sess-1:1700000000000:abc:extra",
	}
	for _, raw := range cases {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrMalformed, "payload %q", raw)
	}
}

func TestFreshnessBoundaryInclusive(t *testing.T) {
	mint := time.UnixMilli(1700000000000)
	window := 35 * time.Second
	p := Payload{SessionID: "s", MintedAt: mint}

	cases := []struct {
		offsetMillis int64
		fresh        bool
	}{
		{0, true},
		{34000, true},
		{35000, true}, // exactly the window is still accepted
		{35001, false},
		{36000, false},
		{-1000, false}, // minted in the future
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("offset_%dms", tc.offsetMillis), func(t *testing.T) {
			now := mint.Add(time.Duration(tc.offsetMillis) * time.Millisecond)
			assert.Equal(t, tc.fresh, p.Fresh(now, window))
		})
	}
}

func TestMintedTokensDiffer(t *testing.T) {
	now := time.Now()
	a, err := Mint("sess-1", now)
	require.NoError(t, err)
	b, err := Mint("sess-1", now)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
