// Package models defines the market data and trading types shared across the
// application: option legs, Greeks, and order direction.
package models

// TransactionType represents the direction of a position, applied uniformly
// to all of its legs.
type TransactionType string

const (
	TransactionBuy  TransactionType = "BUY"
	TransactionSell TransactionType = "SELL"
)

// ContractMultiplier is the number of underlying units per option contract.
const ContractMultiplier = 100

// Greeks represents option sensitivity measures, either for a single leg or
// aggregated across legs and positions.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

// Add returns the component-wise sum of g and other.
func (g Greeks) Add(other Greeks) Greeks {
	return Greeks{
		Delta: g.Delta + other.Delta,
		Gamma: g.Gamma + other.Gamma,
		Theta: g.Theta + other.Theta,
		Vega:  g.Vega + other.Vega,
	}
}

// Scale returns the Greeks multiplied by a quantity.
func (g Greeks) Scale(factor float64) Greeks {
	return Greeks{
		Delta: g.Delta * factor,
		Gamma: g.Gamma * factor,
		Theta: g.Theta * factor,
		Vega:  g.Vega * factor,
	}
}
