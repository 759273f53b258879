package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpdateDescriptor_JSONRoundTripPreservesAllFields(t *testing.T) {
	wire := `{
		"mpakId": "U1",
		"mpakDownloadUrl": "cdn.example.com/u1.mpak",
		"targetDevices": ["DEVICE1", "DEVICE2"],
		"publishedOn": "2026-01-01",
		"crc": "deadbeef",
		"version": "1.2.3",
		"fileSize": 4096,
		"metadata": "{\"k\":\"v\"}",
		"summary": "fixes a bug",
		"detail": "longer description",
		"updateType": 1,
		"retrieved": false,
		"applied": false
	}`

	var d UpdateDescriptor
	require.NoError(t, json.Unmarshal([]byte(wire), &d))

	out, err := json.Marshal(&d)
	require.NoError(t, err)

	var roundTripped map[string]any
	require.NoError(t, json.Unmarshal(out, &roundTripped))

	var original map[string]any
	require.NoError(t, json.Unmarshal([]byte(wire), &original))

	require.Equal(t, original, roundTripped)
}

func TestUpdateDescriptor_RetrievedAppliedAreTriState(t *testing.T) {
	var d UpdateDescriptor
	require.NoError(t, json.Unmarshal([]byte(`{"mpakId":"U1","mpakDownloadUrl":"x"}`), &d))

	require.Nil(t, d.Retrieved, "absent retrieved must decode as nil, not false")
	require.False(t, d.IsRetrieved())

	d.Retrieved = BoolPtr(false)
	require.NotNil(t, d.Retrieved)
	require.False(t, d.IsRetrieved())

	d.Retrieved = BoolPtr(true)
	require.True(t, d.IsRetrieved())
}
