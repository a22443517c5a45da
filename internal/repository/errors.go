// Package repository stores booking receipts in MySQL.  Sentinel errors
// let higher layers such as handlers tell failure scenarios apart.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row.  Handlers should
// translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrInvalidReceipt is returned when a receipt is missing the fields that
// identify it.  The receipts consumer rejects such messages instead of
// retrying them.
var ErrInvalidReceipt = errors.New("invalid receipt")
