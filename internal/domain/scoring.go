package domain

import "math"

// SampleConfidenceCeiling es el número de trades a partir del cual la muestra
// se considera completa (confidence = 1).
const SampleConfidenceCeiling = 50

// ROI devuelve el retorno sobre lo apostado en porcentaje.
// Devuelve 0 si no hay nada apostado.
//
// Fórmula: ROI = pnl × 100 / wagered
func ROI(totalPnL, totalWagered float64) float64 {
	if totalWagered <= 0 {
		return 0
	}
	return totalPnL * 100 / totalWagered
}

// ProfitFactor = ganancias brutas / pérdidas brutas. +Inf siempre que no haya
// pérdidas, también con ganancias 0.
func ProfitFactor(grossWins, grossLosses float64) float64 {
	grossLosses = math.Abs(grossLosses)
	if grossLosses == 0 {
		return math.Inf(1)
	}
	return grossWins / grossLosses
}

// MaxDrawdown devuelve la mayor caída pico-a-valle de la curva de PnL
// acumulado. pnls debe estar en orden cronológico. El pico inicial es 0.
func MaxDrawdown(pnls []float64) float64 {
	var cum, peak, maxDD float64
	for _, p := range pnls {
		cum += p
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Consistency es la media de los retornos por trade dividida por su desviación
// estándar (poblacional). 0 con menos de dos muestras o desviación nula.
func Consistency(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sq float64
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	std := math.Sqrt(sq / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std
}

// SampleConfidence escala de 0 a 1 con el tamaño de la muestra.
func SampleConfidence(trades int) float64 {
	return math.Min(1, float64(trades)/SampleConfidenceCeiling)
}

// RankingScore pondera ROI por confianza de muestra, premia el win rate sobre
// el 50% y añade un bonus de profit factor limitado a 3.
//
// Fórmula: score = ROI × conf + (winRate − 50) × 0.5 + min(PF, 3) × 10
func RankingScore(roi, sampleConfidence, winRate, profitFactor float64) float64 {
	return roi*sampleConfidence + (winRate-50)*0.5 + math.Min(profitFactor, 3)*10
}

// ImpliedWinProbability convierte el historial de un whale en una
// probabilidad "real" estimada.
//
//	mult = min(maxMult, 1 + roi/100)
//	p    = min(maxProb, winRate/100 × mult)
func ImpliedWinProbability(winRate, roi, maxMult, maxProb float64) float64 {
	mult := math.Min(maxMult, 1+roi/100)
	return math.Min(maxProb, winRate/100*mult)
}

// Edge devuelve la diferencia porcentual entre la probabilidad implícita del
// whale y la del mercado, redondeada a un decimal. ok = false si la
// probabilidad del mercado no es positiva.
//
// Fórmula: edge = (p − market) / market × 100
func Edge(impliedProb, marketProb float64) (edge float64, ok bool) {
	if marketProb <= 0 {
		return 0, false
	}
	return RoundTo((impliedProb-marketProb)/marketProb*100, 1), true
}

// RoundTo redondea v a n decimales (half away from zero).
func RoundTo(v float64, n int) float64 {
	p := math.Pow(10, float64(n))
	return math.Round(v*p) / p
}
