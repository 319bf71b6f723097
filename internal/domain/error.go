package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrProviderDisabled    = errors.New("provider disabled for tenant")
	ErrProviderUnknown     = errors.New("unknown provider")
	ErrNoProviderAvailable = errors.New("no payment provider available")
	ErrTenantUnknown       = errors.New("unknown tenant")
	ErrDuplicateCapture    = errors.New("payment already captured for order")
	ErrLockNotAcquired     = errors.New("lock not acquired")

	// Storage-layer errors surfaced by repositories
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrInvalidExecContext = errors.New("invalid transaction execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
