package services

type CreateHoldCommand struct {
	OrderID       string
	ClientID      string
	AmountCents   int64
	Currency      string
	WindowSeconds int64
}

type CaptureCommand struct {
	HoldID          string
	ProviderID      string
	ExpectedVersion int64
}

type CancelCommand struct {
	HoldID          string
	Reason          string
	ExpectedVersion int64
}
