package domain

import (
	"errors"
)

type Money struct {
	Amount   int64
	Currency string
}

func NewMoney(amount int64, currency string) (Money, error) {
	if amount <= 0 {
		return Money{}, errors.New("amount must be positive")
	}
	if currency == "" {
		return Money{}, errors.New("currency is required")
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// OrderID is the external identifier from the marketplace
type OrderID string

// ClientID identifies the requester whose instrument is held
type ClientID string

// ProviderID identifies the provider that accepts an order
type ProviderID string
