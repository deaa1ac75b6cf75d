package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultShippingRule(t *testing.T) {
	p, err := NewCELPolicy("", "")
	require.NoError(t, err)

	// 满 100 免运费，100 整不免
	cases := []struct {
		subtotal string
		want     string
	}{
		{"99.99", "10.00"},
		{"100.00", "10.00"},
		{"100.01", "0.00"},
		{"250.00", "0.00"},
	}
	for _, c := range cases {
		got, err := p.ShippingCost(decimal.RequireFromString(c.subtotal))
		require.NoError(t, err)
		assert.Equal(t, c.want, got.StringFixed(2), "subtotal %s", c.subtotal)
	}
}

func TestDefaultTaxRule(t *testing.T) {
	p, err := NewCELPolicy("", "")
	require.NoError(t, err)

	tax, err := p.Tax(decimal.RequireFromString("55.00"))
	require.NoError(t, err)
	assert.Equal(t, "5.50", tax.StringFixed(2))
}

func TestCustomExpressions(t *testing.T) {
	p, err := NewCELPolicy(`subtotal >= 50.0 ? 5.0 : 15.0`, `subtotal * 0.2`)
	require.NoError(t, err)

	shipping, err := p.ShippingCost(decimal.NewFromInt(60))
	require.NoError(t, err)
	assert.Equal(t, "5.00", shipping.StringFixed(2))

	tax, err := p.Tax(decimal.NewFromInt(60))
	require.NoError(t, err)
	assert.Equal(t, "12.00", tax.StringFixed(2))
}

func TestCompileErrorsSurfaceAtStartup(t *testing.T) {
	_, err := NewCELPolicy(`subtotal +`, "")
	assert.Error(t, err)

	// 表达式必须返回 double
	_, err = NewCELPolicy(`subtotal > 10.0`, "")
	assert.Error(t, err)

	_, err = NewCELPolicy(`unknown_var * 2.0`, "")
	assert.Error(t, err)
}
