// Package synthetic generates corporate-bond trade prints with coverage
// across every rating and tenor bucket, for demo and test data sets.
package synthetic

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"bondmap/internal/config"
	"bondmap/internal/trades"
)

// Ratings lists the generated rating categories, best first
var Ratings = []string{"AAA", "AA+", "AA", "AA-", "A+", "A"}

// tenorRange is a maturity range in days from the generation date
type tenorRange struct {
	label string
	minD  int
	maxD  int
}

var tenorRanges = []tenorRange{
	{"0-1y", 30, 365},
	{"1-3y", 366, 3 * 365},
	{"3-5y", 3*365 + 1, 5 * 365},
	{"5-10y", 5*365 + 1, 10 * 365},
	{"10y+", 10*365 + 1, 20 * 365},
}

var basePrices = map[string]float64{
	"AAA": 102.5, "AA+": 102.0, "AA": 101.5, "AA-": 101.0, "A+": 100.5, "A": 100.0,
}

// Higher ratings trade in larger sizes
var quantityMultipliers = map[string]float64{
	"AAA": 1.5, "AA+": 1.3, "AA": 1.1, "AA-": 1.0, "A+": 0.9, "A": 0.8,
}

// Generator produces synthetic trade prints for one trading session
type Generator struct {
	cfg    config.GeneratorConfig
	rng    *rand.Rand
	logger *slog.Logger
}

// New creates a generator. A zero seed derives one from the clock.
func New(cfg config.GeneratorConfig, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		logger: logger.With("component", "synthetic_generator"),
	}
}

// Generate builds one session (09:30-15:30) of trade prints for the given
// day, covering every rating x tenor combination with BondsPerBucket bonds.
// Events are ordered by instrument then timestamp.
func (g *Generator) Generate(day time.Time) []trades.TradeEvent {
	sessionStart := time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, time.UTC)
	sessionSeconds := int(6 * time.Hour / time.Second)

	var events []trades.TradeEvent
	counter := 1000000000

	for _, rating := range Ratings {
		for _, tenor := range tenorRanges {
			for bond := 0; bond < g.cfg.BondsPerBucket; bond++ {
				instrument := fmt.Sprintf("IN%d", counter)
				counter++

				maturity := day.AddDate(0, 0, g.intBetween(tenor.minD, tenor.maxD))
				numTrades := g.intBetween(g.cfg.MinTrades, g.cfg.MaxTrades)
				price := basePrices[rating]

				for trade := 0; trade < numTrades; trade++ {
					ts := sessionStart.Add(time.Duration(g.rng.Intn(sessionSeconds+1)) * time.Second)

					quantity := float64(g.intBetween(5_000_000, 30_000_000)) * quantityMultipliers[rating]

					// Random walk with an occasional trend kick
					move := g.rng.Float64()*0.03 - 0.015
					if trade%10 == 0 {
						direction := 1.0
						if g.rng.Intn(2) == 0 {
							direction = -1.0
						}
						move += direction * 0.01 * float64(g.intBetween(1, 3))
					}
					price = clamp(price+move, 98, 105)

					events = append(events, trades.TradeEvent{
						InstrumentID: instrument,
						Rating:       rating,
						MaturityDate: maturity,
						Timestamp:    ts,
						Quantity:     quantity,
						Price:        price,
						BuyerCP:      fmt.Sprintf("CP%d", g.intBetween(1, 25)),
						SellerCP:     fmt.Sprintf("CP%d", g.intBetween(26, 50)),
					})
				}
			}
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].InstrumentID != events[j].InstrumentID {
			return events[i].InstrumentID < events[j].InstrumentID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	g.logger.Info("generated synthetic trades",
		"events", len(events),
		"bonds", len(Ratings)*len(tenorRanges)*g.cfg.BondsPerBucket,
		"date", day.Format("2006-01-02"),
	)

	return events
}

// intBetween returns a uniform integer in [lo, hi]
func (g *Generator) intBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Intn(hi-lo+1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
