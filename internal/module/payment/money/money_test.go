package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		currency string
		units    int64
		str      string
	}{
		{"usd with cents", "20.50", "USD", 2050, "20.50"},
		{"usd whole", "2000", "USD", 200000, "2000.00"},
		{"jpy zero decimal", "1500", "JPY", 1500, "1500"},
		{"kwd three decimals", "1.250", "KWD", 1250, "1.250"},
		{"trailing zeros beyond exponent", "10.500", "USD", 1050, "10.50"},
		{"bare fraction", ".50", "USD", 50, "0.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Parse(tt.value, tt.currency)
			require.NoError(t, err)
			assert.Equal(t, tt.units, a.MinorUnits())
			assert.Equal(t, tt.str, a.String())
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		currency string
		wantErr  error
	}{
		{"sub minor precision", "10.005", "USD", ErrSubMinorPrecision},
		{"fraction on zero decimal currency", "1500.5", "JPY", ErrSubMinorPrecision},
		{"negative", "-10.00", "USD", ErrInvalidAmount},
		{"garbage", "ten dollars", "USD", ErrInvalidAmount},
		{"empty", "", "USD", ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.value, tt.currency)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.Equal(t, "15.00", FromMinorUnits(1500, "USD").String())
	assert.Equal(t, "1500", FromMinorUnits(1500, "JPY").String())
	assert.Equal(t, "0.05", FromMinorUnits(5, "EUR").String())
}

func TestExponent(t *testing.T) {
	assert.Equal(t, 0, Exponent("JPY"))
	assert.Equal(t, 2, Exponent("USD"))
	assert.Equal(t, 3, Exponent("BHD"))
	assert.Equal(t, 2, Exponent("XYZ"))
}

func TestAdd(t *testing.T) {
	a, _ := Parse("10.00", "USD")
	b, _ := Parse("5.50", "USD")
	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, "15.50", sum.String())

	jpy, _ := Parse("100", "JPY")
	_, err = a.Add(jpy)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestJSONRoundTrip(t *testing.T) {
	for _, s := range []string{"1500", "20.50", "1.250"} {
		a, err := Infer(s)
		require.NoError(t, err)

		data, err := json.Marshal(a)
		require.NoError(t, err)
		assert.Equal(t, `"`+s+`"`, string(data))

		var back Amount
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, a, back)
	}
}
