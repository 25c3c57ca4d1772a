package arbitration_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyswarm/internal/arbitration"
	"github.com/alejandrodnm/polyswarm/internal/domain"
)

type reply struct {
	text string
	err  error
}

// fakeModel responde por nombre de modelo y cuenta las llamadas.
type fakeModel struct {
	mu       sync.Mutex
	replies  map[string]reply
	fallback reply
	calls    int
	requests []domain.ModelRequest
}

func (f *fakeModel) Generate(_ context.Context, req domain.ModelRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if r, ok := f.replies[req.Model]; ok {
		return r.text, r.err
	}
	return f.fallback.text, f.fallback.err
}

func (f *fakeModel) requestFor(model string) (domain.ModelRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.Model == model {
			return r, true
		}
	}
	return domain.ModelRequest{}, false
}

func buyInput() arbitration.Input {
	return arbitration.Input{
		Agent: "alpha",
		Market: domain.MarketSnapshot{
			TokenID: "tok", Question: "Will it rain?", Outcome: "Yes", Price: 0.4,
		},
		Proposal: domain.Proposal{TokenID: "tok", Side: domain.SideBuy, Amount: 5, Price: 0.4, Source: "yolo"},
		Balance:  10,
	}
}

func sellInput(shares float64) arbitration.Input {
	in := buyInput()
	in.Proposal.Side = domain.SideSell
	in.Shares = shares
	return in
}

// --- Parser ---

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", `{"action":"SKIP"}`, `{"action":"SKIP"}`, true},
		{"fenced", "```json\n{\"action\":\"EXECUTE\"}\n```", `{"action":"EXECUTE"}`, true},
		{"prose around", `Sure! {"a":{"b":1}} hope it helps {"c":2}`, `{"a":{"b":1}}`, true},
		{"brace in string", `{"reasoning":"use } carefully","x":1}`, `{"reasoning":"use } carefully","x":1}`, true},
		{"escaped quote", `{"r":"say \"}\" now"}`, `{"r":"say \"}\" now"}`, true},
		{"skips invalid span", `use {action} like this: {"action":"SKIP"}`, `{"action":"SKIP"}`, true},
		{"inner object of invalid span", `{note {"action":"EXECUTE"}}`, `{"action":"EXECUTE"}`, true},
		{"no object", "I cannot decide", "", false},
		{"only invalid spans", "pick {one} or {two}", "", false},
		{"unbalanced", `{"action":"EXECUTE"`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := arbitration.ExtractJSON(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSON_TypedError(t *testing.T) {
	var out map[string]any
	err := arbitration.ParseJSON(`{"action": EXECUTE}`, &out)

	var pe *arbitration.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Raw, "EXECUTE")
}

// --- Veto ---

func TestVeto_SellWithoutSharesNeverCallsModel(t *testing.T) {
	m := &fakeModel{fallback: reply{text: `{"action":"EXECUTE"}`}}
	v := arbitration.NewVeto(m, arbitration.VetoConfig{})

	d := v.Review(context.Background(), sellInput(0))

	assert.Equal(t, domain.VerdictVeto, d.Verdict)
	assert.Equal(t, 0, m.calls)
}

func TestVeto_NoModelPassesThrough(t *testing.T) {
	in := buyInput()
	d := arbitration.NewVeto(nil, arbitration.VetoConfig{}).Review(context.Background(), in)

	require.True(t, d.Approved())
	assert.Equal(t, in.Proposal, d.Proposal)
}

func TestVeto_ModelErrorPassesThrough(t *testing.T) {
	m := &fakeModel{fallback: reply{err: errors.New("timeout")}}
	in := buyInput()

	d := arbitration.NewVeto(m, arbitration.VetoConfig{}).Review(context.Background(), in)

	require.True(t, d.Approved())
	assert.Equal(t, in.Proposal, d.Proposal)
	assert.Equal(t, 1, m.calls)
}

func TestVeto_UnparsableReemitsOriginal(t *testing.T) {
	for _, strict := range []bool{false, true} {
		m := &fakeModel{fallback: reply{text: "I think you should buy."}}
		in := buyInput()

		d := arbitration.NewVeto(m, arbitration.VetoConfig{Strict: strict}).Review(context.Background(), in)

		require.True(t, d.Approved(), "strict=%v", strict)
		assert.Equal(t, in.Proposal, d.Proposal)
	}
}

func TestVeto_Skip(t *testing.T) {
	m := &fakeModel{fallback: reply{text: `{"action":"SKIP","reasoning":"too risky"}`}}

	d := arbitration.NewVeto(m, arbitration.VetoConfig{}).Review(context.Background(), buyInput())

	assert.Equal(t, domain.VerdictVeto, d.Verdict)
	assert.Equal(t, "too risky", d.Reason)
}

func TestVeto_SkipWithMistypedOverrides(t *testing.T) {
	m := &fakeModel{fallback: reply{text: `{"action":"SKIP","amount":"0","price":[1],"reasoning":"too risky"}`}}

	d := arbitration.NewVeto(m, arbitration.VetoConfig{}).Review(context.Background(), buyInput())

	assert.Equal(t, domain.VerdictVeto, d.Verdict)
	assert.Equal(t, "too risky", d.Reason)
}

func TestVeto_SkipAfterBracedProse(t *testing.T) {
	m := &fakeModel{fallback: reply{text: `Answer with {action}. {"action":"SKIP","reasoning":"thin book"}`}}

	d := arbitration.NewVeto(m, arbitration.VetoConfig{}).Review(context.Background(), buyInput())

	assert.Equal(t, domain.VerdictVeto, d.Verdict)
	assert.Equal(t, "thin book", d.Reason)
}

func TestVeto_ExecuteLenientOverrides(t *testing.T) {
	m := &fakeModel{fallback: reply{text: `{"action":"EXECUTE","amount":"3.5","price":"n/a","side":7}`}}
	in := buyInput()

	d := arbitration.NewVeto(m, arbitration.VetoConfig{}).Review(context.Background(), in)

	require.True(t, d.Approved())
	assert.InDelta(t, 3.5, d.Proposal.Amount, 1e-9)
	assert.InDelta(t, in.Proposal.Price, d.Proposal.Price, 1e-9)
	assert.Equal(t, domain.SideBuy, d.Proposal.Side)
}

func TestVeto_ExecuteOverridesAndClamps(t *testing.T) {
	m := &fakeModel{fallback: reply{text: "```json\n{\"action\":\"execute\",\"side\":\"sell\",\"amount\":-3,\"price\":0.45}\n```"}}
	in := buyInput()
	in.Shares = 10

	d := arbitration.NewVeto(m, arbitration.VetoConfig{Model: "reviewer"}).Review(context.Background(), in)

	require.True(t, d.Approved())
	assert.Equal(t, domain.SideSell, d.Proposal.Side)
	assert.InDelta(t, 0.0, d.Proposal.Amount, 1e-9)
	assert.InDelta(t, 0.45, d.Proposal.Price, 1e-9)
	assert.Equal(t, "tok", d.Proposal.TokenID)

	req, ok := m.requestFor("reviewer")
	require.True(t, ok)
	assert.Equal(t, 256, req.MaxTokens)
	assert.Contains(t, req.Prompt, `"available_shares":10`)
	assert.Contains(t, req.System, "NEVER approve a SELL")
}

func TestVeto_InvalidSideKeepsOriginal(t *testing.T) {
	m := &fakeModel{fallback: reply{text: `{"action":"EXECUTE","side":"HOLD","amount":2}`}}

	d := arbitration.NewVeto(m, arbitration.VetoConfig{}).Review(context.Background(), buyInput())

	require.True(t, d.Approved())
	assert.Equal(t, domain.SideBuy, d.Proposal.Side)
	assert.InDelta(t, 2.0, d.Proposal.Amount, 1e-9)
}

// --- Consensus ---

func hivemind(m *fakeModel) *arbitration.Consensus {
	return arbitration.NewConsensus(m, arbitration.ConsensusConfig{
		Specialists: []string{"analyst-a", "analyst-b", "analyst-c"},
		Coordinator: "coord",
	})
}

func TestConsensus_Enabled(t *testing.T) {
	m := &fakeModel{}
	assert.True(t, hivemind(m).Enabled())
	assert.False(t, arbitration.NewConsensus(m, arbitration.ConsensusConfig{Coordinator: "coord"}).Enabled())
	assert.False(t, arbitration.NewConsensus(m, arbitration.ConsensusConfig{Specialists: []string{"a"}}).Enabled())
	assert.False(t, arbitration.NewConsensus(nil, arbitration.ConsensusConfig{Specialists: []string{"a"}, Coordinator: "c"}).Enabled())

	var nilConsensus *arbitration.Consensus
	assert.False(t, nilConsensus.Enabled())
}

func TestConsensus_CoordinatorFailureFallsBack(t *testing.T) {
	m := &fakeModel{
		replies:  map[string]reply{"coord": {err: errors.New("503")}},
		fallback: reply{text: `{"action":"EXECUTE","confidence":0.8}`},
	}

	d := hivemind(m).Decide(context.Background(), buyInput())

	assert.Equal(t, domain.VerdictFallback, d.Verdict)
	assert.Equal(t, 4, m.calls)
}

func TestConsensus_CoordinatorUnparsableFallsBack(t *testing.T) {
	m := &fakeModel{
		replies:  map[string]reply{"coord": {text: "no idea"}},
		fallback: reply{text: `{"action":"SKIP"}`},
	}

	d := hivemind(m).Decide(context.Background(), buyInput())
	assert.Equal(t, domain.VerdictFallback, d.Verdict)
}

func TestConsensus_CoordinatorStringAmount(t *testing.T) {
	m := &fakeModel{
		replies:  map[string]reply{"coord": {text: `{"action":"EXECUTE","amount":"3"}`}},
		fallback: reply{text: `{"action":"EXECUTE","amount_multiplier":"x","confidence":"0.7"}`},
	}

	d := hivemind(m).Decide(context.Background(), buyInput())

	require.True(t, d.Approved())
	assert.InDelta(t, 3.0, d.Proposal.Amount, 1e-9)

	req, ok := m.requestFor("coord")
	require.True(t, ok)
	assert.Contains(t, req.Prompt, `"model":"analyst-a"`)
	assert.Contains(t, req.Prompt, `"confidence":0.7`)
}

func TestConsensus_SpecialistsBestEffort(t *testing.T) {
	m := &fakeModel{
		replies: map[string]reply{
			"analyst-a": {text: `{"action":"EXECUTE","amount_multiplier":1.5,"confidence":0.9,"reasoning":"edge"}`},
			"analyst-b": {err: errors.New("down")},
			"analyst-c": {text: "garbage"},
			"coord":     {text: `{"action":"EXECUTE","amount":7.5,"reasoning":"agreed"}`},
		},
	}

	d := hivemind(m).Decide(context.Background(), buyInput())

	require.True(t, d.Approved())
	assert.InDelta(t, 7.5, d.Proposal.Amount, 1e-9)
	assert.Equal(t, "agreed", d.Reason)

	req, ok := m.requestFor("coord")
	require.True(t, ok)
	assert.Contains(t, req.Prompt, `"model":"analyst-a"`)
	assert.NotContains(t, req.Prompt, "analyst-b")
	assert.NotContains(t, req.Prompt, "analyst-c")
	assert.Equal(t, 384, req.MaxTokens)
}

func TestConsensus_SkipVetoes(t *testing.T) {
	m := &fakeModel{
		replies:  map[string]reply{"coord": {text: `{"action":"SKIP","reasoning":"split vote"}`}},
		fallback: reply{text: `{"action":"SKIP"}`},
	}

	d := hivemind(m).Decide(context.Background(), buyInput())
	assert.Equal(t, domain.VerdictVeto, d.Verdict)
	assert.Equal(t, "split vote", d.Reason)
}

// --- Arbiter ---

func TestArbiter_SellWithoutSharesShortCircuits(t *testing.T) {
	m := &fakeModel{fallback: reply{text: `{"action":"EXECUTE"}`}}
	a := arbitration.NewArbiter(hivemind(m), arbitration.NewVeto(m, arbitration.VetoConfig{}))

	d := a.Arbitrate(context.Background(), sellInput(1e-12))

	assert.Equal(t, domain.VerdictVeto, d.Verdict)
	assert.Equal(t, 0, m.calls)
}

func TestArbiter_FallbackGoesToVeto(t *testing.T) {
	m := &fakeModel{
		replies: map[string]reply{
			"coord":    {err: errors.New("down")},
			"reviewer": {text: `{"action":"EXECUTE","amount":2}`},
		},
		fallback: reply{text: `{"action":"EXECUTE"}`},
	}
	a := arbitration.NewArbiter(hivemind(m), arbitration.NewVeto(m, arbitration.VetoConfig{Model: "reviewer"}))

	d := a.Arbitrate(context.Background(), buyInput())

	require.True(t, d.Approved())
	assert.InDelta(t, 2.0, d.Proposal.Amount, 1e-9)
	_, reviewed := m.requestFor("reviewer")
	assert.True(t, reviewed)
}

func TestArbiter_ConsensusDecisionIsFinal(t *testing.T) {
	m := &fakeModel{
		replies: map[string]reply{
			"coord":    {text: `{"action":"SKIP"}`},
			"reviewer": {text: `{"action":"EXECUTE"}`},
		},
		fallback: reply{text: `{"action":"EXECUTE"}`},
	}
	a := arbitration.NewArbiter(hivemind(m), arbitration.NewVeto(m, arbitration.VetoConfig{Model: "reviewer"}))

	d := a.Arbitrate(context.Background(), buyInput())

	assert.Equal(t, domain.VerdictVeto, d.Verdict)
	_, reviewed := m.requestFor("reviewer")
	assert.False(t, reviewed)
}

func TestArbiter_NoStagesPassesThrough(t *testing.T) {
	in := buyInput()
	d := arbitration.NewArbiter(nil, nil).Arbitrate(context.Background(), in)

	require.True(t, d.Approved())
	assert.Equal(t, in.Proposal, d.Proposal)
}
