// Package dropper decides which packets a simulated lossy channel discards.
package dropper

import (
	"fmt"
	"math/rand"
)

// Dropper reports whether the next packet is lost.
type Dropper interface {
	Drop() bool
}

// Bernoulli implements a simple u<p drop decision.
type Bernoulli struct {
	p   float64
	rng *rand.Rand
}

func New(p float64, rng *rand.Rand) *Bernoulli { return &Bernoulli{p: p, rng: rng} }

func (b *Bernoulli) Drop() bool {
	if b.p <= 0 {
		return false
	}
	if b.p >= 1 {
		return true
	}
	return b.rng.Float64() < b.p
}

// GilbertElliott is the two-state burst loss channel. In the good state a
// packet is lost with probability LossGood, in the bad state with LossBad.
// The state changes before each packet with probability PGoodBad or PBadGood.
type GilbertElliott struct {
	PGoodBad, PBadGood float64
	LossGood, LossBad  float64

	bad bool
	rng *rand.Rand
}

// NewGilbertElliott returns a channel starting in the good state.
func NewGilbertElliott(pGB, pBG, lossGood, lossBad float64, rng *rand.Rand) *GilbertElliott {
	return &GilbertElliott{PGoodBad: pGB, PBadGood: pBG, LossGood: lossGood, LossBad: lossBad, rng: rng}
}

func (g *GilbertElliott) Drop() bool {
	if g.bad {
		if g.rng.Float64() < g.PBadGood {
			g.bad = false
		}
	} else if g.rng.Float64() < g.PGoodBad {
		g.bad = true
	}
	p := g.LossGood
	if g.bad {
		p = g.LossBad
	}
	return g.rng.Float64() < p
}

// MeanLoss is the stationary loss rate.
func (g *GilbertElliott) MeanLoss() float64 {
	if g.PGoodBad+g.PBadGood == 0 {
		return g.LossGood
	}
	piBad := g.PGoodBad / (g.PGoodBad + g.PBadGood)
	return (1-piBad)*g.LossGood + piBad*g.LossBad
}

// Never drops nothing.
type Never struct{}

func (Never) Drop() bool { return false }

// Parse builds a dropper from a model name: "none", "bernoulli" with p, or
// "ge" with pGB, pBG and the bad-state loss rate (the good state is lossless).
func Parse(model string, params []float64, rng *rand.Rand) (Dropper, error) {
	switch model {
	case "", "none":
		return Never{}, nil
	case "bernoulli":
		if len(params) != 1 {
			return nil, fmt.Errorf("dropper: bernoulli takes 1 parameter, got %d", len(params))
		}
		return New(params[0], rng), nil
	case "ge", "gilbert-elliott":
		if len(params) != 3 {
			return nil, fmt.Errorf("dropper: gilbert-elliott takes 3 parameters, got %d", len(params))
		}
		return NewGilbertElliott(params[0], params[1], 0, params[2], rng), nil
	default:
		return nil, fmt.Errorf("dropper: unknown loss model %q", model)
	}
}
