package treasury

import "errors"

var (
	ErrUnauthorized          = errors.New("requester is not a treasury owner")
	ErrUnauthorizedSigner    = errors.New("signer is not a treasury owner")
	ErrNotFound              = errors.New("proposal not found")
	ErrAlreadyFinalized      = errors.New("proposal already finalized")
	ErrThresholdNotMet       = errors.New("signature threshold not met")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrPayloadConstruction   = errors.New("build transaction payload failed")
	ErrSignatureCombination  = errors.New("combine signatures failed")
	ErrExecutionRejected     = errors.New("execution rejected by ledger")
	ErrSubmissionTransport   = errors.New("submit transaction failed")
	ErrInvalidRegistryConfig = errors.New("invalid owner registry")
)
