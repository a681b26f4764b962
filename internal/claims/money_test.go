package claims

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyUnmarshalNumber(t *testing.T) {
	var m Money
	require.NoError(t, json.Unmarshal([]byte(`150.00`), &m))
	assert.True(t, m.IsSet())
	assert.True(t, m.Valid())
	assert.Equal(t, int64(15000), m.Cents())
}

func TestMoneyUnmarshalString(t *testing.T) {
	var m Money
	require.NoError(t, json.Unmarshal([]byte(`"89.5"`), &m))
	assert.True(t, m.Valid())
	assert.Equal(t, int64(8950), m.Cents())
}

func TestMoneyUnmarshalNull(t *testing.T) {
	var m Money
	require.NoError(t, json.Unmarshal([]byte(`null`), &m))
	assert.False(t, m.IsSet())
	assert.False(t, m.Valid())
}

func TestMoneyRejectsExcessPrecision(t *testing.T) {
	// Sub-cent amounts must not round silently; the value is kept for the
	// error report but flagged invalid.
	var m Money
	require.NoError(t, json.Unmarshal([]byte(`150.005`), &m))
	assert.True(t, m.IsSet())
	assert.False(t, m.Valid())
	assert.Equal(t, "150.005", m.Raw())
}

func TestMoneyRejectsGarbage(t *testing.T) {
	var m Money
	require.NoError(t, json.Unmarshal([]byte(`"one hundred"`), &m))
	assert.True(t, m.IsSet())
	assert.False(t, m.Valid())
}

func TestMoneyNegative(t *testing.T) {
	var m Money
	require.NoError(t, json.Unmarshal([]byte(`-12.34`), &m))
	assert.True(t, m.Valid())
	assert.True(t, m.Negative())
	assert.Equal(t, int64(-1234), m.Cents())
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "150.00", MoneyFromCents(15000).String())
	assert.Equal(t, "0.05", MoneyFromCents(5).String())
	assert.Equal(t, "-3.21", MoneyFromCents(-321).String())
}

func TestMoneyMarshalRoundTrip(t *testing.T) {
	data, err := json.Marshal(MoneyFromCents(15000))
	require.NoError(t, err)
	assert.Equal(t, "150.00", string(data))

	var back Money
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, int64(15000), back.Cents())
}
