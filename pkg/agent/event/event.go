package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a published occurrence of interest to out-of-band consumers
// (indexers, notification pipelines). Events are advisory; no core invariant
// depends on their delivery.
type Event struct {
	Id        uuid.UUID
	Timestamp time.Time
	Payload   Payload
}

type Payload interface {
	Kind() string
}

// TokenAccountClosed is emitted when a user token account is closed and its
// rent lamports are returned to the funding sub-account.
type TokenAccountClosed struct {
	Account    string
	SubAccount string
	Lamports   uint64
}

func (TokenAccountClosed) Kind() string { return "token_account_closed" }

// FeeCollected is emitted when accrued fees are swept from a sub-account
// into the registered collector destinations.
type FeeCollected struct {
	SubAccount     string
	TransactionFee uint64
	TradeFee       uint64
}

func (FeeCollected) Kind() string { return "fee_collected" }

// TipSent is emitted when a sub-account tips a designated tip account.
type TipSent struct {
	SubAccount string
	TipAccount string
	Amount     uint64
}

func (TipSent) Kind() string { return "tip_sent" }
