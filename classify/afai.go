package classify

import (
	"context"

	"github.com/chewxy/math32"
)

// Band center wavelengths in nanometers for the 20m floating-algae triplet.
const (
	lambdaRed  = 665 // B04
	lambdaNIR  = 740 // B06
	lambdaSWIR = 865 // B8A
)

// DefaultAFAIPivot is the floating-algae score mapped to probability 0.5,
// the published detection threshold for this index.
const DefaultAFAIPivot = 0.005

// DefaultAFAIGain is the logistic steepness. Scores a full pivot away from
// the center saturate well past 0.99.
const DefaultAFAIGain = 1000

// AFAI is the alternative floating algae index: the near-infrared excess of a
// pixel over the red-to-shortwave baseline interpolated at the NIR
// wavelength. Floating vegetation lifts the NIR shoulder, open water does
// not. A logistic around the pivot calibrates the raw score into [0,1] so
// thresholds stay comparable across classifier backends.
type AFAI struct {
	pivot float32
	gain  float32
}

var afaiBands = []string{"B04", "B06", "B8A"}

// NewAFAI builds the analytic classifier. Zero pivot or gain select the
// defaults.
func NewAFAI(pivot, gain float32) *AFAI {
	if pivot == 0 {
		pivot = DefaultAFAIPivot
	}
	if gain == 0 {
		gain = DefaultAFAIGain
	}
	return &AFAI{pivot: pivot, gain: gain}
}

// Name implements Classifier.
func (a *AFAI) Name() string { return "afai" }

// Bands implements Classifier. Order is red, NIR, SWIR.
func (a *AFAI) Bands() []string { return afaiBands }

// Score returns the raw uncalibrated index for one pixel.
func (a *AFAI) Score(red, nir, swir float32) float32 {
	baseline := red + (swir-red)*float32(lambdaNIR-lambdaRed)/float32(lambdaSWIR-lambdaRed)
	return nir - baseline
}

// Predict implements Classifier. The computation is per-pixel and state-free,
// so concurrent calls need no serialization.
func (a *AFAI) Predict(_ context.Context, window []float32, bands, h, w int) ([]float32, error) {
	if bands != len(afaiBands) {
		return nil, &ModelInputError{Model: a.Name(), Want: len(afaiBands), Got: bands, Detail: "channels"}
	}
	n := h * w
	if len(window) != bands*n {
		return nil, &ModelInputError{Model: a.Name(), Want: bands * n, Got: len(window), Detail: "samples"}
	}

	red := window[:n]
	nir := window[n : 2*n]
	swir := window[2*n : 3*n]

	out := make([]float32, n)
	for i := 0; i < n; i++ {
		score := a.Score(red[i], nir[i], swir[i])
		out[i] = 1 / (1 + math32.Exp(-a.gain*(score-a.pivot)))
	}
	return out, nil
}

// Close implements Classifier. The index holds no resources.
func (a *AFAI) Close() error { return nil }
