package chainlinks

import (
	"context"
)

// Ledger keeps track of the short code -> URL mapping. An empty URL and a nil
// error mean nothing is stored under the short code.
type Ledger interface {
	GetURL(ctx context.Context, shortCode string) (longURL string, err error)
}

// Account identifies a connected signing identity.
type Account struct {
	Address string
	ChainID int64
}

// Receipt describes a mined setURL transaction.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
}

// Wallet supplies a signing identity and submits writes to the ledger on its behalf.
type Wallet interface {
	Connect(ctx context.Context) (Account, error)
	SetURL(ctx context.Context, from Account, shortCode, longURL string) (Receipt, error)
}
