package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

// winnerPriceThreshold: un token cerrado con precio >= 0.99 se considera ganador
// cuando el CLOB todavía no marcó el flag winner.
const winnerPriceThreshold = 0.99

// mapResolution aplica la política de resolución sobre la respuesta del CLOB.
//
//   - no cerrado → Pending
//   - cerrado con un token winner=true de outcome YES/NO → Resolved
//   - cerrado sin flag pero con un token YES/NO a precio >= 0.99 → Resolved
//   - cerrado sin ganador determinable → Unknown
func mapResolution(marketID string, m clobMarket) domain.Resolution {
	res := domain.Resolution{MarketID: marketID, Question: m.Question}
	if !m.Closed {
		res.Status = domain.ResolutionPending
		return res
	}

	for _, t := range m.Tokens {
		if !t.Winner {
			continue
		}
		if o, err := domain.ParseOutcome(t.Outcome); err == nil {
			res.Status = domain.ResolutionResolved
			res.Winner = o
			return res
		}
	}

	for _, t := range m.Tokens {
		if t.Price < winnerPriceThreshold {
			continue
		}
		if o, err := domain.ParseOutcome(t.Outcome); err == nil {
			res.Status = domain.ResolutionResolved
			res.Winner = o
			return res
		}
	}

	res.Status = domain.ResolutionUnknown
	res.Reason = "closed without determinable winner"
	return res
}

// mapClobMarket convierte un clobMarket DTO a domain.MarketInfo.
func mapClobMarket(m clobMarket) domain.MarketInfo {
	info := domain.MarketInfo{
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Slug:        m.MarketSlug,
		Active:      m.Active,
		Closed:      m.Closed,
		Tokens:      make([]domain.Token, 0, len(m.Tokens)),
	}
	for _, t := range m.Tokens {
		info.Tokens = append(info.Tokens, domain.Token{
			TokenID: t.TokenID,
			Outcome: t.Outcome,
			Price:   t.Price,
			Winner:  t.Winner,
		})
	}
	if yes, no, ok := yesNoPrices(info.Tokens); ok {
		info.YesPrice, info.NoPrice, info.HasPrices = yes, no, true
	}
	return info
}

// yesNoPrices busca los precios por nombre de outcome; si los tokens no se
// llaman Yes/No usa el orden (índice 0 = YES).
func yesNoPrices(tokens []domain.Token) (yes, no float64, ok bool) {
	if len(tokens) < 2 {
		return 0, 0, false
	}
	yesIdx, noIdx := 0, 1
	for i, t := range tokens {
		switch o, _ := domain.ParseOutcome(t.Outcome); o {
		case domain.OutcomeYes:
			yesIdx = i
		case domain.OutcomeNo:
			noIdx = i
		}
	}
	return tokens[yesIdx].Price, tokens[noIdx].Price, true
}

// mapGammaMarket convierte un gammaMarket DTO a domain.MarketInfo.
func mapGammaMarket(gm gammaMarket) domain.MarketInfo {
	info := domain.MarketInfo{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        gm.Slug,
		Active:      gm.Active,
		Closed:      gm.Closed,
		Volume:      numberOrZero(gm.Volume),
		Liquidity:   numberOrZero(gm.Liquidity),
		CreatedAt:   parseISODate(gm.CreatedAt),
		EndDate:     parseISODate(gm.EndDateISO),
	}

	prices, ok := gm.OutcomePrices.floats()
	if !ok || len(prices) < 2 {
		return info
	}
	info.Tokens = make([]domain.Token, len(prices))
	for i, p := range prices {
		outcome := ""
		if i < len(gm.Outcomes) {
			outcome = gm.Outcomes[i]
		}
		info.Tokens[i] = domain.Token{Outcome: outcome, Price: p}
	}
	info.YesPrice, info.NoPrice, info.HasPrices = yesNoPrices(info.Tokens)
	return info
}

// mapTapeTrade convierte un trade del tape. Los trades sin wallet se descartan.
func mapTapeTrade(rt dataTrade) (domain.TapeTrade, bool) {
	wallet := domain.NormalizeAddress(rt.ProxyWallet)
	if wallet == "" {
		return domain.TapeTrade{}, false
	}
	pseudonym := rt.Pseudonym
	if pseudonym == "" {
		pseudonym = rt.Name
	}
	return domain.TapeTrade{
		ID:          rt.TransactionHash,
		Wallet:      wallet,
		Pseudonym:   pseudonym,
		ConditionID: rt.ConditionID,
		Title:       rt.Title,
		Outcome:     rt.Outcome,
		Side:        strings.ToUpper(rt.Side),
		Size:        numberOrZero(rt.Size),
		Price:       numberOrZero(rt.Price),
		Timestamp:   parseTradeTimestamp(rt.Timestamp),
	}, true
}

// mapWalletPosition convierte una posición del data-api.
func mapWalletPosition(rp dataPosition) domain.WalletPosition {
	return domain.WalletPosition{
		ConditionID:  rp.ConditionID,
		Title:        rp.Title,
		Outcome:      rp.Outcome,
		Asset:        rp.Asset,
		Size:         numberOrZero(rp.Size),
		AvgPrice:     numberOrZero(rp.AvgPrice),
		CurPrice:     numberOrZero(rp.CurPrice),
		CurrentValue: numberOrZero(rp.CurrentValue),
		CashPnL:      numberOrZero(rp.CashPnL),
		RealizedPnL:  numberOrZero(rp.RealizedPnL),
	}
}

func numberOrZero(n json.Number) float64 {
	if n == "" {
		return 0
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return f
}

// parseISODate acepta los formatos que usa Gamma. Devuelve zero si no reconoce ninguno.
func parseISODate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// parseTradeTimestamp acepta unix en segundos o milisegundos, float o ISO.
func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond)).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	return parseISODate(s)
}
