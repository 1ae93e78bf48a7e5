package ledger

import "errors"

// ErrCorrupt indicates the record chain violates one of its invariants.
var ErrCorrupt = errors.New("ledger: corrupt record chain")
