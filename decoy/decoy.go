// Copyright (c) 2026 The sanctuary developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package decoy splits a change amount into several randomized outputs so
// that the change of a transaction is not trivially identifiable by being
// the single odd amount. The split conserves the total exactly and keeps
// every output above the dust threshold, falling back to a single output
// when the change is too small to split.
package decoy

import (
	"math/rand"
	"time"

	"github.com/btcsuite/btcd/btcutil"
)

// Generator produces decoy amount splits from an injectable randomness
// source, which keeps tests deterministic.
type Generator struct {
	rnd *rand.Rand
}

// NewGenerator creates a Generator drawing from the given source.
func NewGenerator(rnd *rand.Rand) *Generator {
	return &Generator{rnd: rnd}
}

// Generate splits totalChange into count outputs using a time-seeded
// randomness source.
func Generate(totalChange btcutil.Amount, count int,
	dustThreshold btcutil.Amount) []btcutil.Amount {

	gen := NewGenerator(rand.New(rand.NewSource(time.Now().UnixNano())))

	return gen.Generate(totalChange, count, dustThreshold)
}

// Generate splits totalChange into count outputs. The invariants are:
//
//   - the returned amounts always sum to exactly totalChange, and
//   - whenever a split actually occurs, every output is at least
//     dustThreshold.
//
// A count below two, or a total too small to give every output its dust
// reservation, returns the change as a single unsplit amount.
func (g *Generator) Generate(totalChange btcutil.Amount, count int,
	dustThreshold btcutil.Amount) []btcutil.Amount {

	if count < 2 {
		return []btcutil.Amount{totalChange}
	}

	// Reserve the dust threshold for every output up front. If nothing
	// usable remains after the reservation, the change cannot be split.
	usable := totalChange - dustThreshold*btcutil.Amount(count)
	if usable <= 0 {
		return []btcutil.Amount{totalChange}
	}

	amounts := make([]btcutil.Amount, count)
	remaining := usable
	for i := 0; i < count-1; i++ {
		// Aim for an even share of what remains, scaled by a random
		// weight with symmetric jitter around one.
		weight := 0.75 + g.rnd.Float64()*0.5
		share := btcutil.Amount(
			float64(remaining) / float64(count-i) * weight,
		)

		// Clamp to half of what remains so no single output can
		// swallow the pool and leave an obviously oversized
		// leftover.
		if share > remaining/2 {
			share = remaining / 2
		}
		if share < 0 {
			share = 0
		}

		amounts[i] = dustThreshold + share
		remaining -= share
	}

	// The final slot takes the exact remainder, which is what guarantees
	// sum conservation regardless of rounding above.
	amounts[count-1] = dustThreshold + remaining

	// Shuffle so the largest output does not sit in a predictable
	// position.
	g.rnd.Shuffle(count, func(i, j int) {
		amounts[i], amounts[j] = amounts[j], amounts[i]
	})

	return amounts
}
