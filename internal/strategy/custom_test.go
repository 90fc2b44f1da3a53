package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan01993/QuantConnectProjectGit/internal/config"
	"github.com/bryan01993/QuantConnectProjectGit/internal/models"
)

func TestCustomLegs(t *testing.T) {
	t.Run("single type applies to every leg", func(t *testing.T) {
		legs, err := CustomLegs([]string{"Put"}, []float64{20, 30}, []int{-2, 1})
		require.NoError(t, err)
		assert.Equal(t, []CustomLeg{
			{Right: models.RightPut, Side: -2, Delta: 20},
			{Right: models.RightPut, Side: 1, Delta: 30},
		}, legs)
	})

	tests := []struct {
		name   string
		types  []string
		deltas []float64
		sides  []int
	}{
		{"no sides", []string{"Put"}, nil, nil},
		{"deltas mismatch", []string{"Put"}, []float64{20}, []int{-1, 1}},
		{"types mismatch", []string{"Put", "Call", "Put"}, []float64{20, 30}, []int{-1, 1}},
		{"unknown type", []string{"Future"}, []float64{20}, []int{-1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CustomLegs(tt.types, tt.deltas, tt.sides)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	t.Run("from config", func(t *testing.T) {
		legs, err := CustomLegsFromConfig([]config.CustomLeg{{Side: -1, Type: "Call", Delta: 15}})
		require.NoError(t, err)
		assert.Equal(t, []CustomLeg{{Right: models.RightCall, Side: -1, Delta: 15}}, legs)
	})
}

func TestBuildCustomOrder(t *testing.T) {
	ratio := []CustomLeg{
		{Right: models.RightPut, Side: -2, Delta: 20},
		{Right: models.RightPut, Side: 1, Delta: 30},
	}

	t.Run("ratio spread infers credit", func(t *testing.T) {
		f := newFixture(t, spreadParams())
		order, err := f.builder.BuildCustomOrder(testChain(testExpiry), ratio, "Ratio", nil)
		require.NoError(t, err)
		require.NotNil(t, order)

		assert.True(t, order.Credit)
		assert.InDelta(t, 2.75, order.OrderMidPrice, 1e-9, "2 × 4.50 - 6.25")
		require.Len(t, order.Legs, 2)
		assert.Equal(t, 3800.0, order.Legs[0].Strike)
		assert.Equal(t, -2, order.Legs[0].Side)
		assert.Equal(t, 3850.0, order.Legs[1].Strike)
		assert.Equal(t, "Ratio-1", order.Tag)
	})

	t.Run("explicit debit", func(t *testing.T) {
		f := newFixture(t, spreadParams())
		order, err := f.builder.BuildCustomOrder(testChain(testExpiry), ratio, "Ratio", boolPtr(false))
		require.NoError(t, err)
		require.NotNil(t, order)
		assert.False(t, order.Credit)
		assert.Nil(t, order.StopLoss)
	})

	t.Run("unmatched delta is no order", func(t *testing.T) {
		f := newFixture(t, spreadParams())
		tuples := []CustomLeg{{Right: models.RightPut, Side: -1, Delta: 5}}
		order, err := f.builder.BuildCustomOrder(testChain(testExpiry), tuples, "Far Put", nil)
		require.NoError(t, err)
		assert.Nil(t, order)
		assert.Equal(t, int64(0), f.ids.Last())
	})

	t.Run("invalid tuples", func(t *testing.T) {
		f := newFixture(t, spreadParams())
		_, err := f.builder.BuildCustomOrder(testChain(testExpiry), nil, "Empty", nil)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.builder.BuildCustomOrder(testChain(testExpiry), []CustomLeg{{Right: models.RightPut, Delta: 20}}, "Zero", nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("greeks filled only where missing", func(t *testing.T) {
		f := newFixture(t, spreadParams())
		chain := testChain(testExpiry)
		bare := quoted(models.RightPut, 3600, 1, 1.2)
		chain = append(chain, bare)

		_, err := f.builder.BuildCustomOrder(chain, ratio, "Ratio", nil)
		require.NoError(t, err)
		require.NotNil(t, bare.Greeks)
		assert.InDelta(t, 0.18, chain[0].ImpliedVolatility, 1e-9, "existing snapshots untouched")
	})
}
