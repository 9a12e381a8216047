package models

import "errors"

// Sentinel errors shared by the engine. Wrap with fmt.Errorf("...: %w", err)
// and match with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletCorrupt       = errors.New("wallet corrupt")
	ErrPriceUnavailable    = errors.New("price unavailable")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransferFailed      = errors.New("transfer failed")
	ErrDecryption          = errors.New("decryption failed")
)
