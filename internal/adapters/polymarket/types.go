package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// clobMarket es la respuesta de GET /markets/{condition_id}.
type clobMarket struct {
	ConditionID string      `json:"condition_id"`
	Question    string      `json:"question"`
	MarketSlug  string      `json:"market_slug"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
	Archived    bool        `json:"archived"`
	Tokens      []clobToken `json:"tokens"`
}

// clobToken representa un token (YES/NO) en el CLOB.
type clobToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene la metadata enriquecida de un mercado.
// Gamma devuelve algunos campos numéricos como strings JSON, usamos json.Number.
// outcomes y outcomePrices llegan como un string que contiene un array JSON.
type gammaMarket struct {
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	CreatedAt     string      `json:"createdAt"`
	EndDateISO    string      `json:"endDateIso"`
	Volume        json.Number `json:"volume"`
	Liquidity     json.Number `json:"liquidity"`
	Outcomes      stringList  `json:"outcomes"`
	OutcomePrices stringList  `json:"outcomePrices"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}

// stringList acepta tanto ["a","b"] como "[\"a\",\"b\"]" y arrays numéricos.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*l = nil
			return nil
		}
		data = []byte(inner)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, strings.TrimSpace(string(r)))
	}
	*l = out
	return nil
}

// floats convierte los elementos a float64; los no numéricos quedan en 0 y ok=false.
func (l stringList) floats() ([]float64, bool) {
	out := make([]float64, len(l))
	ok := len(l) > 0
	for i, s := range l {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			ok = false
			continue
		}
		out[i] = f
	}
	return out, ok
}

// --- Data API ---

// dataTrade es un item de GET /trades (tape global).
type dataTrade struct {
	TransactionHash string      `json:"transactionHash"`
	ProxyWallet     string      `json:"proxyWallet"`
	Pseudonym       string      `json:"pseudonym"`
	Name            string      `json:"name"`
	ConditionID     string      `json:"conditionId"`
	Title           string      `json:"title"`
	Outcome         string      `json:"outcome"`
	Side            string      `json:"side"`
	Size            json.Number `json:"size"`
	Price           json.Number `json:"price"`
	Timestamp       json.Number `json:"timestamp"`
}

// dataPosition es un item de GET /positions?user=.
type dataPosition struct {
	ConditionID  string      `json:"conditionId"`
	Title        string      `json:"title"`
	Outcome      string      `json:"outcome"`
	Asset        string      `json:"asset"`
	Size         json.Number `json:"size"`
	AvgPrice     json.Number `json:"avgPrice"`
	CurPrice     json.Number `json:"curPrice"`
	CurrentValue json.Number `json:"currentValue"`
	CashPnL      json.Number `json:"cashPnl"`
	RealizedPnL  json.Number `json:"realizedPnl"`
}
