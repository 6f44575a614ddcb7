// Package trades defines the raw trade print model and its append-only store.
package trades

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// TradeEvent is a single corporate-bond trade print. Events are immutable
// once appended to the store and are consumed ordered by instrument then
// trade timestamp.
type TradeEvent struct {
	TradeID      int64     `json:"trade_id" csv:"trade_id"`
	InstrumentID string    `json:"instrument_id" validate:"required"`
	Rating       string    `json:"rating" validate:"required"`
	MaturityDate time.Time `json:"maturity_date" validate:"required"`
	Timestamp    time.Time `json:"trade_ts" validate:"required"`
	Quantity     float64   `json:"quantity" validate:"gte=0"`
	Price        float64   `json:"price" validate:"gt=0"`
	BuyerCP      string    `json:"buyer_cp"`
	SellerCP     string    `json:"seller_cp"`
}

// InstrumentAttrs is the static side mapping consumed by the grid aggregator.
type InstrumentAttrs struct {
	Rating       string    `json:"rating"`
	MaturityDate time.Time `json:"maturity_date"`
}

var validate = validator.New()

// Validate checks the event against its field constraints
func (e TradeEvent) Validate() error {
	return validate.Struct(e)
}

// Attributes derives the instrument attribute mapping from a trade sequence,
// keeping the attributes of each instrument's most recent print.
func Attributes(events []TradeEvent) map[string]InstrumentAttrs {
	latest := make(map[string]time.Time)
	attrs := make(map[string]InstrumentAttrs)

	for _, e := range events {
		if ts, ok := latest[e.InstrumentID]; ok && !e.Timestamp.After(ts) {
			continue
		}
		latest[e.InstrumentID] = e.Timestamp
		attrs[e.InstrumentID] = InstrumentAttrs{
			Rating:       e.Rating,
			MaturityDate: e.MaturityDate,
		}
	}

	return attrs
}
