package config

import (
	"os"
	"strings"
)

// StockEventOutboxEnabled makes document creation and stock allocation write
// stock_event_records inside the same transaction for the dispatcher to publish.
//
// Set via env:
// - STOCK_EVENT_OUTBOX=true
func StockEventOutboxEnabled() bool {
	return envBool("STOCK_EVENT_OUTBOX")
}

// StrictPickUpSlipLines rejects line edits on a completed pick-up slip.
// When off, lines sent with a completed -> completed re-save are ignored.
//
// Set via env:
// - STRICT_PICK_UP_SLIP_LINES=true
func StrictPickUpSlipLines() bool {
	return envBool("STRICT_PICK_UP_SLIP_LINES")
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
