package codec_test

import (
	"testing"

	"github.com/luxfi/ruth/pkg/codec"
	"github.com/luxfi/ruth/pkg/party"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientUpdateRoundTrip(t *testing.T) {
	u := &codec.ClientUpdate{
		RoundID:          7,
		DeviceID:         "device-a",
		SeedID:           42,
		Scalar:           0.125,
		Loss:             1.5,
		Signature:        make([]byte, 64),
		AttestationToken: []byte("token"),
	}
	b, err := codec.EncodeUpdate(u)
	require.NoError(t, err)

	got, err := codec.DecodeUpdate(b)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestSeedSetRoundTrip(t *testing.T) {
	s := &codec.SeedSet{
		RoundID:    3,
		PRNGConfig: map[string]interface{}{"type": "blake3-xof", "layout": "v1"},
		Seeds:      []party.SeedID{1, 2, 3},
		Epsilon:    0.1,
	}
	b, err := codec.EncodeSeedSet(s)
	require.NoError(t, err)

	got, err := codec.DecodeSeedSet(b)
	require.NoError(t, err)
	assert.Equal(t, s.RoundID, got.RoundID)
	assert.Equal(t, s.Seeds, got.Seeds)
	assert.Equal(t, s.Epsilon, got.Epsilon)
}

func TestAggResponseRoundTrip(t *testing.T) {
	hint := "round-10"
	r := &codec.AggResponse{
		ServerUpdates: map[string]interface{}{"direction_norm": 1.5},
		NextRoundHint: &hint,
	}
	b, err := codec.EncodeAggResponse(r)
	require.NoError(t, err)

	got, err := codec.DecodeAggResponse(b)
	require.NoError(t, err)
	assert.Equal(t, r.ServerUpdates, got.ServerUpdates)
	require.NotNil(t, got.NextRoundHint)
	assert.Equal(t, *r.NextRoundHint, *got.NextRoundHint)
}

func TestDecodeUpdateRejectsGarbage(t *testing.T) {
	_, err := codec.DecodeUpdate([]byte{0xff, 0x00, 0x01})
	require.Error(t, err)
}
