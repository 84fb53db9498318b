package ledger

import "errors"

var (
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrUnknownAccount     = errors.New("account not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrNegativeBalance    = errors.New("initial balance cannot be negative")
)
