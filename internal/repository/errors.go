package repository

import "errors"

var (
	// ErrVaultExists signals a second vault for the same student.
	ErrVaultExists = errors.New("vault already exists for student")
	// ErrVaultNotFrozen signals a settlement attempt against a vault that was already cleared.
	ErrVaultNotFrozen = errors.New("vault is not frozen")
)
