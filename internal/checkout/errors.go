package checkout

import "errors"

// Error taxonomy, mapped to HTTP statuses at the API boundary. Gateway
// declines are not errors: they come back as a Result with Success=false
// and the gateway's own result code.
var (
	// ErrValidation: missing or malformed caller input.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound: unknown order id or card token.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState: refund of a failed or already-refunded
	// transaction.
	ErrInvalidState = errors.New("invalid state")

	// ErrNotSupported: charge attempt against a reference-only (non-
	// vaulted) card token.
	ErrNotSupported = errors.New("not supported")

	// ErrGateway: the gateway could not be reached or returned garbage.
	// The operation is still recorded in the ledger with the synthetic
	// result code "999".
	ErrGateway = errors.New("gateway unavailable")
)

// TransportResultCode is the synthetic result code recorded when the
// gateway call itself failed, distinguishable from any real decline code.
const TransportResultCode = "999"
