package models

import "time"

// ExchangeConnection is a user's credential link to one exchange or brokerage
// account. Credentials are sealed (encrypted) before they reach the database
// and never serialized back to clients.
type ExchangeConnection struct {
	ID       string `json:"id"`
	UserID   string `json:"-"`
	Exchange string `json:"exchange"`
	Label    string `json:"label"`

	// SealedCredentials is the encrypted API key/secret blob.
	SealedCredentials []byte `json:"-"`

	// SnapTradeAuthID links an aggregator-backed connection to its
	// authorization on the aggregator side.
	SnapTradeAuthID string `json:"snapTradeAuthId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ConnectionCredentials is the plaintext credential pair held only in memory.
type ConnectionCredentials struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

// SnapTradeUser is the per-user registration with the brokerage aggregator.
type SnapTradeUser struct {
	UserID       string
	STUserID     string
	STUserSecret string
	CreatedAt    time.Time
}
