package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestROI_Basic(t *testing.T) {
	assert.Equal(t, 15.0, ROI(150, 1000))
}

func TestROI_NothingWagered(t *testing.T) {
	assert.Equal(t, 0.0, ROI(50, 0))
}

// --- ProfitFactor ---

func TestProfitFactor_NoLosses(t *testing.T) {
	assert.True(t, math.IsInf(ProfitFactor(300, 0), 1))
}

func TestProfitFactor_NoLossesAndNoGains(t *testing.T) {
	assert.True(t, math.IsInf(ProfitFactor(0, 0), 1))
}

func TestProfitFactor_NegativeLossesAreAbsolute(t *testing.T) {
	assert.InDelta(t, 2.0, ProfitFactor(200, -100), 1e-9)
}

// --- MaxDrawdown ---

func TestMaxDrawdown_Chronological(t *testing.T) {
	// cum: 100, 50, -30, 20 → pico 100, valle -30
	assert.InDelta(t, 130.0, MaxDrawdown([]float64{100, -50, -80, 50}), 1e-9)
}

func TestMaxDrawdown_StartsFromZero(t *testing.T) {
	assert.InDelta(t, 40.0, MaxDrawdown([]float64{-40, 10}), 1e-9)
}

func TestMaxDrawdown_Empty(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown(nil))
}

// --- Consistency ---

func TestConsistency_SingleSample(t *testing.T) {
	assert.Equal(t, 0.0, Consistency([]float64{1.5}))
}

func TestConsistency_ZeroStdDev(t *testing.T) {
	assert.Equal(t, 0.0, Consistency([]float64{1, 1, 1}))
}

func TestConsistency_MeanOverStdDev(t *testing.T) {
	// mean 2, std poblacional 1
	assert.InDelta(t, 2.0, Consistency([]float64{1, 3}), 1e-9)
}

// --- SampleConfidence / RankingScore ---

func TestSampleConfidence_Saturates(t *testing.T) {
	assert.InDelta(t, 0.5, SampleConfidence(25), 1e-9)
	assert.Equal(t, 1.0, SampleConfidence(50))
	assert.Equal(t, 1.0, SampleConfidence(500))
}

func TestRankingScore_CapsProfitFactor(t *testing.T) {
	capped := RankingScore(20, 0.5, 60, math.Inf(1))
	// 20×0.5 + 10×0.5 + 3×10
	assert.InDelta(t, 45.0, capped, 1e-9)
	assert.Equal(t, capped, RankingScore(20, 0.5, 60, 3))
}

// --- Edge ---

func TestImpliedWinProbability_ROIMultiplierBounded(t *testing.T) {
	assert.InDelta(t, 0.66, ImpliedWinProbability(60, 10, 1.5, 0.95), 1e-9)
	assert.InDelta(t, 0.9, ImpliedWinProbability(60, 200, 1.5, 0.95), 1e-9)
	assert.InDelta(t, 0.95, ImpliedWinProbability(80, 200, 1.5, 0.95), 1e-9)
}

func TestEdge_RoundedToOneDecimal(t *testing.T) {
	edge, ok := Edge(0.525, 0.5)
	require.True(t, ok)
	assert.Equal(t, 5.0, edge)

	edge, ok = Edge(0.5255, 0.5)
	require.True(t, ok)
	assert.Equal(t, 5.1, edge)
}

func TestEdge_NonPositiveMarketProbability(t *testing.T) {
	_, ok := Edge(0.7, 0)
	assert.False(t, ok)
}

// --- Confidence tiers ---

func TestSignalConfidence_Tiers(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, SignalConfidence(72, 55, 12))     // 3+3+1
	assert.Equal(t, ConfidenceMedium, SignalConfidence(66, 35, 6))    // 2+2+1
	assert.Equal(t, ConfidenceLow, SignalConfidence(61, 21, 6))       // 1+1+1
	assert.Equal(t, ConfidenceHigh, SignalConfidence(65, 30, 20))     // 2+2+3
	assert.Equal(t, ConfidenceLow, SignalConfidence(64.9, 29, 25))    // 1+1+3
}

func TestConsensusConfidence_Tiers(t *testing.T) {
	assert.Equal(t, ConfidenceVeryHigh, ConsensusConfidence(4, 72, 22, 150)) // 4+3+3+2
	assert.Equal(t, ConfidenceHigh, ConsensusConfidence(2, 70, 16, 120))     // 2+3+2+2
	assert.Equal(t, ConfidenceMedium, ConsensusConfidence(2, 66, 8, 40))     // 2+2+1+1
	assert.Equal(t, ConfidenceLow, ConsensusConfidence(2, 61, 6, 40))        // 2+1+1+1
}

func TestConsensusConfidence_WhaleCountCapped(t *testing.T) {
	assert.Equal(t, ConsensusConfidence(4, 61, 6, 40), ConsensusConfidence(9, 61, 6, 40))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 12.3, RoundTo(12.34, 1))
	assert.Equal(t, -0.5, RoundTo(-0.46, 1))
}
