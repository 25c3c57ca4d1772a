package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Gamma API ---

// gammaMarket es un mercado de GET /markets de Gamma.
// Gamma mezcla números y strings en los campos numéricos, y devuelve
// clobTokenIds/outcomes a veces como lista JSON y a veces como string con la lista dentro.
type gammaMarket struct {
	ConditionID     string    `json:"conditionId"`
	Question        string    `json:"question"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Slug            string    `json:"slug"`
	EndDateISO      string    `json:"endDateIso"`
	EndDate         string    `json:"endDate"`
	Active          *bool     `json:"active"`
	Closed          *bool     `json:"closed"`
	Archived        *bool     `json:"archived"`
	EnableOrderBook *bool     `json:"enableOrderBook"`
	AcceptingOrders *bool     `json:"acceptingOrders"`
	ClobTokenIDs    flexList  `json:"clobTokenIds"`
	Outcomes        flexList  `json:"outcomes"`
	OutcomePrices   flexList  `json:"outcomePrices"`
	Volume24hrClob  flexFloat `json:"volume24hrClob"`
	VolumeNum       flexFloat `json:"volumeNum"`
	Volume24hr      flexFloat `json:"volume24hr"`
	Volume24Hr      flexFloat `json:"volume24Hr"`
	Volume          flexFloat `json:"volume"`
	LiquidityNum    flexFloat `json:"liquidityNum"`
	Liquidity       flexFloat `json:"liquidity"`
	LiquidityClob   flexFloat `json:"liquidityClob"`
}

// gammaEnvelope cubre la variante {"data": [...]} de la respuesta.
type gammaEnvelope struct {
	Data []gammaMarket `json:"data"`
}

// --- CLOB API ---

// bookResponse es la respuesta de GET /book. Algunos despliegues la envuelven en "book".
type bookResponse struct {
	AssetID string      `json:"asset_id"`
	Bids    []bookLevel `json:"bids"`
	Asks    []bookLevel `json:"asks"`
	Book    *struct {
		AssetID string      `json:"asset_id"`
		Bids    []bookLevel `json:"bids"`
		Asks    []bookLevel `json:"asks"`
	} `json:"book"`
}

// bookLevel es un nivel de precio. La API lo manda como {"price","size"} o como [price, size].
type bookLevel struct {
	Price flexFloat
	Size  flexFloat
}

func (l *bookLevel) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var pair []flexFloat
		if err := json.Unmarshal(b, &pair); err != nil {
			return err
		}
		if len(pair) > 0 {
			l.Price = pair[0]
		}
		if len(pair) > 1 {
			l.Size = pair[1]
		}
		return nil
	}
	var obj struct {
		Price flexFloat `json:"price"`
		Size  flexFloat `json:"size"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	l.Price, l.Size = obj.Price, obj.Size
	return nil
}

// flexFloat acepta número, string numérico o null. Un valor no parseable queda en 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexList acepta una lista JSON de strings o un string que contiene esa lista.
type flexList []string

func (l *flexList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = nil
		return nil
	}
	if b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*l = nil
			return nil
		}
		b = []byte(inner)
	}
	var raw []any
	if err := json.Unmarshal(b, &raw); err != nil {
		*l = nil
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			out = append(out, t)
		case float64:
			out = append(out, strconv.FormatFloat(t, 'f', -1, 64))
		}
	}
	*l = out
	return nil
}
