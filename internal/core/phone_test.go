package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"surrounding whitespace", "  9876543210 ", []string{"9876543210"}},
		{"periods removed", "987.654.3210", []string{"9876543210"}},
		{"crlf", "9876543210\r\n044 12345678", []string{"9876543210", "044", "12345678"}},
		{"escaped crlf", `9876543210\r\n9123456789`, []string{"9876543210", "9123456789"}},
		{"bare newline and cr", "044\n12345678\r9123456789", []string{"044", "12345678", "9123456789"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.raw)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyTokens(t *testing.T) {
	t.Run("mobile and landline", func(t *testing.T) {
		mobiles, phones := ClassifyTokens([]string{"9876543210", "044", "12345678"})
		assert.Equal(t, []string{"9876543210"}, mobiles)
		assert.Equal(t, []string{"04412345678"}, phones)
	})

	t.Run("eight digits without area code", func(t *testing.T) {
		mobiles, phones := ClassifyTokens([]string{"12345678"})
		assert.Empty(t, mobiles)
		assert.Empty(t, phones)
	})

	// An area code followed by two local lines yields two landlines sharing
	// the area code; neither local line is counted twice.
	t.Run("shared area code", func(t *testing.T) {
		_, phones := ClassifyTokens([]string{"044", "11111111", "22222222"})
		assert.Equal(t, []string{"04411111111", "04422222222"}, phones)
	})

	t.Run("mobile between area code and local line", func(t *testing.T) {
		mobiles, phones := ClassifyTokens([]string{"044", "9876543210", "12345678"})
		assert.Equal(t, []string{"9876543210"}, mobiles)
		assert.Empty(t, phones)
	})
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		c1, c2 string
	}{
		{"single mobile", "9876543210", "9876543210", NoValue},
		{"mobile and landline", "9876543210\r\n044 12345678", "9876543210", "04412345678"},
		{"two mobiles", "9876543210 9123456789", "9876543210", "9123456789"},
		{"single landline", "044 12345678", "04412345678", NoValue},
		{"two landlines shared area code", "044 11111111 22222222", "04411111111", "04422222222"},
		{"two landlines", "044 11111111 080 22222222", "04411111111", "08022222222"},
		{"three mobiles", "9876543210 9123456789 9000000000", NoValue, NoValue},
		{"unrecognised", "12345", NoValue, NoValue},
		{"empty", "", NoValue, NoValue},
		{"area code then mobile", "044 11111111 9876543210", "9876543210", "04411111111"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c1, c2 := NormalizePhone(tt.raw)
			assert.Equal(t, tt.c1, c1)
			assert.Equal(t, tt.c2, c2)
		})
	}
}

func TestNormalizePhones(t *testing.T) {
	t.Run("writes contacts and drops raw attribute", func(t *testing.T) {
		batch := makeBatch([]string{"id", "phone"},
			[]string{"1", "9876543210"},
			[]string{"2", ""},
		)

		out, err := NormalizePhones(batch, []string{"phone"})
		require.NoError(t, err)
		require.Len(t, out, 2)

		assert.Equal(t, []string{"id", ContactNumber1, ContactNumber2}, out[0].Columns())
		assert.Equal(t, Text("9876543210"), value(t, out[0], ContactNumber1))
		assert.Equal(t, Text(NoValue), value(t, out[0], ContactNumber2))

		// null raw value
		assert.Equal(t, Text(NoValue), value(t, out[1], ContactNumber1))
		assert.Equal(t, Text(NoValue), value(t, out[1], ContactNumber2))

		// input untouched
		assert.True(t, batch[0].Has("phone"))
	})

	t.Run("missing attribute reported", func(t *testing.T) {
		batch := makeBatch([]string{"id"}, []string{"1"})

		out, err := NormalizePhones(batch, []string{"phone"})

		var ruleErr *RuleApplicationError
		require.ErrorAs(t, err, &ruleErr)
		assert.Equal(t, StagePhoneNormalized, ruleErr.Stage)
		assert.True(t, batch.Equal(out))
	})

	t.Run("last attribute wins", func(t *testing.T) {
		batch := makeBatch([]string{"home", "work"}, []string{"9876543210", "044 12345678"})

		out, err := NormalizePhones(batch, []string{"home", "work"})
		require.NoError(t, err)
		assert.Equal(t, Text("04412345678"), value(t, out[0], ContactNumber1))
		assert.False(t, out[0].Has("home"))
		assert.False(t, out[0].Has("work"))
	})
}
