package history

import "errors"

// ErrInTransaction is returned by every Engine query method when called
// while a transaction is marked active (spec §7 InTransaction).
var ErrInTransaction = errors.New("history: query invoked from inside a transaction")
