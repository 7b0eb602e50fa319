package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestParseValue(t *testing.T) {
	tests := []struct {
		raw  *string
		want Value
	}{
		{nil, Null()},
		{strp("21.5"), Number(21.5)},
		{strp("-3"), Number(-3)},
		{strp("0"), Number(0)},
		{strp("0.001"), Number(0.001)},
		{strp("1e3"), Text("1e3")},
		{strp("007"), Text("007")},
		{strp("1.50"), Text("1.50")},
		{strp("0x1p4"), Text("0x1p4")},
		{strp(" 5"), Text(" 5")},
		{strp("open"), Text("open")},
		{strp(""), Text("")},
		{strp("NaN"), Text("NaN")},
		{strp("Inf"), Text("Inf")},
	}
	for _, tt := range tests {
		got := ParseValue(tt.raw)
		assert.Equal(t, tt.want, got)
		if tt.raw != nil {
			assert.Equal(t, *tt.raw, got.String(), "reads back as sent")
		}
	}
}

func TestValueJSON(t *testing.T) {
	b, err := json.Marshal([]Value{Number(21.5), Text("open"), Null()})
	require.NoError(t, err)
	assert.JSONEq(t, `[21.5, "open", null]`, string(b))

	var back []Value
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, []Value{Number(21.5), Text("open"), Null()}, back)

	var v Value
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
}

func TestValueScan(t *testing.T) {
	var v Value
	require.NoError(t, v.Scan(int64(4)))
	assert.Equal(t, Number(4), v)
	require.NoError(t, v.Scan([]byte("x")))
	assert.Equal(t, Text("x"), v)
	require.NoError(t, v.Scan(nil))
	assert.True(t, v.IsNull())
	assert.Error(t, v.Scan(true))
}
