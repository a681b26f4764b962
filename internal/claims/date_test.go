package claims

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateUnmarshalCalendarDate(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2023-08-01"`), &d))
	assert.True(t, d.Valid())
	assert.Equal(t, time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC), d.Time())
}

func TestDateUnmarshalRFC3339(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2023-08-01T14:30:00Z"`), &d))
	assert.True(t, d.Valid())
	assert.Equal(t, 14, d.Time().Hour())
}

func TestDateUnmarshalInvalidKeepsRaw(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2023-13-45"`), &d))
	assert.True(t, d.IsSet())
	assert.False(t, d.Valid())
	assert.Equal(t, "2023-13-45", d.Raw())
}

func TestDateUnmarshalNull(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.False(t, d.IsSet())
}

func TestDateOrdering(t *testing.T) {
	early := DateOf(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	late := DateOf(time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC))
	var invalid Date

	assert.True(t, early.Before(late))
	assert.True(t, late.After(early))
	assert.False(t, invalid.Before(late))
	assert.False(t, late.After(invalid))
}

func TestDay(t *testing.T) {
	// Day buckets are UTC regardless of the timestamp's zone.
	loc := time.FixedZone("UTC-6", -6*3600)
	local := time.Date(2023, 8, 1, 22, 0, 0, 0, loc)
	assert.Equal(t, "2023-08-02", Day(local))
}

func TestClaimTypeAliases(t *testing.T) {
	for input, want := range map[string]ClaimType{
		`"medical"`:      TypeMedical,
		`"Dental"`:       TypeDental,
		`"prescription"`: TypePharmacy,
		`"RX"`:           TypePharmacy,
	} {
		var ct ClaimType
		require.NoError(t, json.Unmarshal([]byte(input), &ct))
		assert.Equal(t, want, ct, "input %s", input)
	}

	var unknown ClaimType
	require.NoError(t, json.Unmarshal([]byte(`"chiropractic"`), &unknown))
	assert.False(t, unknown.Known())
	assert.Equal(t, ClaimType("chiropractic"), unknown)
}
