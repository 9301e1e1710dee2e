package domain

import "errors"

var (
	// ErrNotFound se devuelve cuando el registro pedido no existe en el ledger.
	ErrNotFound = errors.New("not found")

	// ErrDuplicatePosition: ya existe una posición para (whale, market, side).
	ErrDuplicatePosition = errors.New("duplicate position")

	// ErrOutcomeConflict: el oráculo reporta un ganador distinto al ya registrado.
	// Nunca se sobreescribe.
	ErrOutcomeConflict = errors.New("market already resolved with a different outcome")

	// ErrZeroEntryPrice: una posición ganadora sin precio de entrada no se puede liquidar.
	ErrZeroEntryPrice = errors.New("entry price must be positive")

	ErrInvalidOutcome = errors.New("invalid outcome")
)
