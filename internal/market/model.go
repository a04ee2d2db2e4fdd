package market

import "time"

// Security is one community's listed stock. Value is the book valuation in
// std gold, recomputed from live community wealth at every tick and purchase;
// Floating is the circulating pool the price engine walks every tick. Spot
// price is Floating / Issuance.
type Security struct {
	ID       string    `json:"id"`
	GroupID  string    `json:"group_id"`
	Name     string    `json:"name"`
	Issuance int64     `json:"issuance"`
	Value    int64     `json:"value"`
	Floating float64   `json:"floating"`
	ListedAt time.Time `json:"listed_at"`
}

// Spot is the current per-unit price.
func (s *Security) Spot() float64 {
	if s.Issuance <= 0 {
		return 0
	}
	return s.Floating / float64(s.Issuance)
}

// Order is a standing sell registration. Quote 0 sells at whatever the tick
// pays; a positive quote holds out for at least that per-unit price.
type Order struct {
	ID         int64     `json:"id"`
	SecurityID string    `json:"security_id"`
	UserID     string    `json:"user_id"`
	Quantity   int64     `json:"quantity"`
	Quote      float64   `json:"quote"`
	CreatedAt  time.Time `json:"created_at"`
}

type PricePoint struct {
	TickAt time.Time `json:"tick_at"`
	Price  float64   `json:"price"`
}

// TickReport summarizes one security's settlement pass.
type TickReport struct {
	SecurityID string  `json:"security_id"`
	Floating   float64 `json:"floating"`
	Fills      []Fill  `json:"fills,omitempty"`
	TotalStd   int64   `json:"total_std"`
}

// RevolutionReport is returned whether or not the redistribution fired.
type RevolutionReport struct {
	GroupID string  `json:"group_id"`
	Gini    float64 `json:"gini"`
	Total   int64   `json:"total"`
	Fired   bool    `json:"fired"`
	Level   int64   `json:"level"`
	Reason  string  `json:"reason,omitempty"`
}

// BuyReport tells the buyer what actually happened; a purchase can stop short
// of the requested quantity for several reasons.
type BuyReport struct {
	Security string `json:"security"`
	Units    int64  `json:"units"`
	CostStd  int64  `json:"cost_std"`
	Stopped  string `json:"stopped,omitempty"`
}

const securityColumns = `id, group_id, name, issuance, value, floating, listed_at`
