package l1sync

import "errors"

// ErrStaleL1Prices is raised by GasPriceWorker.Run when no successful price
// update has landed for 10x the poll interval, mirroring the fatal panic in
// original_source's gas_price_worker ("Gas prices have not been updated for
// {} ms").
var ErrStaleL1Prices = errors.New("l1sync: gas prices stale, no update within watchdog window")

// ErrCancelledMessage names a message cancelled on the settlement layer.
// MessagingWorker does not return it: a cancelled message is burned (its
// nonce recorded as consumed) and the worker moves on.
var ErrCancelledMessage = errors.New("l1sync: message cancelled on settlement layer")
