package models

// BrokerActivity is one account activity as reported by the brokerage
// aggregator. Units are signed: negative units mean the position shrank.
type BrokerActivity struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"` // BUY, SELL, DIVIDEND, CONTRIBUTION, ...
	Symbol      string  `json:"symbol"`
	Units       float64 `json:"units"`
	Price       float64 `json:"price"`
	Fee         float64 `json:"fee"`
	Currency    string  `json:"currency"`
	TradeDate   string  `json:"trade_date"`
	Institution string  `json:"institution"`
}

// BrokerBalance is one asset balance from the aggregator's balances endpoint.
type BrokerBalance struct {
	Asset    string  `json:"asset"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}
