package lifecycle

import "errors"

// ErrApprovalConsumed is returned when an approval link targets a ticket
// that already left needs_approval. Links are single use.
var ErrApprovalConsumed = errors.New("approval already resolved")
