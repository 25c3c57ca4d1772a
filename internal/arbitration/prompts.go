package arbitration

import (
	"encoding/json"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const vetoSystemPrompt = "You are the decision layer for a trading agent on Polymarket. " +
	"Assess the tool proposal and decide to EXECUTE or SKIP. If executing, you may adjust side, amount, or price " +
	"but keep them within valid bounds (0 < price < 1, amount >= 0). " +
	"NEVER approve a SELL when available_shares <= 0, and never increase amount beyond available_shares * price for sells. " +
	`Respond with compact JSON: {"action": "EXECUTE"|"SKIP", "side": ..., "amount": ..., "price": ..., "reasoning": ...}.`

const specialistSystemPrompt = "You are a specialist model assisting a trading agent. Review the base proposal and return JSON with " +
	"fields action (EXECUTE or SKIP), side, amount_multiplier (float), price (optional), confidence (0-1), reasoning."

const coordinatorSystemPrompt = "You are the coordinator for multiple specialist models. Review their outputs and decide the final action. " +
	"Return JSON with fields action (EXECUTE or SKIP), side, amount, price, reasoning. Never approve a SELL when available_shares <= 0."

type marketPayload struct {
	Question  string  `json:"question"`
	Outcome   string  `json:"outcome"`
	Price     float64 `json:"price"`
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	Volume    float64 `json:"volume"`
	Liquidity float64 `json:"liquidity"`
	Category  string  `json:"category"`
}

type proposalPayload struct {
	TokenID   string  `json:"token_id"`
	Side      string  `json:"side"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Reasoning string  `json:"reasoning,omitempty"`
	Tool      string  `json:"tool,omitempty"`
}

type reviewPayload struct {
	Agent           string              `json:"agent"`
	Market          marketPayload       `json:"market"`
	Proposal        proposalPayload     `json:"proposal"`
	Balance         float64             `json:"portfolio_balance"`
	AvailableShares float64             `json:"available_shares"`
	Specialists     []specialistOpinion `json:"specialists,omitempty"`
}

func newReviewPayload(in Input) reviewPayload {
	m := in.Market
	p := in.Proposal
	return reviewPayload{
		Agent: in.Agent,
		Market: marketPayload{
			Question:  m.Question,
			Outcome:   m.Outcome,
			Price:     m.Price,
			BestBid:   m.BestBid,
			BestAsk:   m.BestAsk,
			Volume:    m.Volume,
			Liquidity: m.Liquidity,
			Category:  m.Category,
		},
		Proposal: proposalPayload{
			TokenID:   p.TokenID,
			Side:      p.Side.String(),
			Amount:    p.Amount,
			Price:     p.Price,
			Reasoning: p.Reasoning,
			Tool:      p.Source,
		},
		Balance:         in.Balance,
		AvailableShares: in.Shares,
	}
}

// encode nunca falla para estos tipos; un error devolvería "{}".
func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func vetoPrompt(in Input) string {
	return "Tool proposal:\n" + encode(newReviewPayload(in)) + "\nReturn JSON only."
}

func specialistPrompt(in Input) string {
	return encode(newReviewPayload(in))
}

func coordinatorPrompt(in Input, opinions []specialistOpinion) string {
	payload := newReviewPayload(in)
	payload.Specialists = opinions
	return encode(payload)
}

// requestFor construye la llamada al modelo.
func requestFor(model, system, prompt string, maxTokens int) domain.ModelRequest {
	return domain.ModelRequest{Model: model, System: system, Prompt: prompt, MaxTokens: maxTokens}
}
