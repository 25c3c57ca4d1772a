package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyswarm/internal/domain"
)

const (
	FormatTable   = "table"
	FormatCompact = "compact"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	profitStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	lossStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// Console implementa ports.Notifier.
type Console struct {
	out    io.Writer
	format string
	now    func() time.Time
}

// NewConsole crea un notificador que escribe a stdout.
// format es "table" (por defecto) o "compact".
func NewConsole(format string) *Console {
	return NewConsoleWriter(os.Stdout, format)
}

// NewConsoleWriter crea un notificador sobre un writer arbitrario.
func NewConsoleWriter(w io.Writer, format string) *Console {
	if format != FormatCompact {
		format = FormatTable
	}
	return &Console{out: w, format: format, now: time.Now}
}

// RoundSummary imprime las propuestas despachadas en una ronda.
func (c *Console) RoundSummary(_ context.Context, report domain.RoundReport) error {
	header := fmt.Sprintf("[%s] round %d · %d markets · %d proposals · %d executed · %s",
		report.StartedAt.Format("15:04:05"), report.Number, report.Markets,
		report.Proposals, report.Executed, report.Duration.Round(time.Millisecond))

	if c.format == FormatCompact {
		var sb strings.Builder
		sb.WriteString(header)
		for _, r := range report.Results {
			fmt.Fprintf(&sb, " | %s %s $%.2f@%.3f %s",
				r.Agent, r.Proposal.Side, r.Proposal.Amount, r.Proposal.Price, resultLabel(r))
		}
		fmt.Fprintln(c.out, sb.String())
		return nil
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, titleStyle.Render(header))
	if len(report.Results) == 0 {
		fmt.Fprintln(c.out, mutedStyle.Render("  no proposals this round"))
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Agent", "Side", "Amount", "Price", "Token", "Source", "Result")
	for _, r := range report.Results {
		table.Append(
			r.Agent,
			r.Proposal.Side.String(),
			fmt.Sprintf("$%.2f", r.Proposal.Amount),
			fmt.Sprintf("%.3f", r.Proposal.Price),
			shortID(r.Proposal.TokenID),
			orDash(r.Proposal.Source),
			resultLabel(r),
		)
	}
	return table.Render()
}

// AgentStats imprime el rendimiento de cada agente y el agregado del swarm.
func (c *Console) AgentStats(_ context.Context, stats []domain.AgentStats) error {
	var initial, current float64
	var trades int
	for _, s := range stats {
		initial += s.Initial
		current += s.Current
		trades += s.Trades
	}
	roi := 0.0
	if initial > 0 {
		roi = (current - initial) / initial * 100
	}
	summary := fmt.Sprintf("swarm · %d agents · $%.2f → $%.2f · %s · %d trades",
		len(stats), initial, current, signed(current-initial, roi), trades)

	if c.format == FormatCompact {
		fmt.Fprintf(c.out, "[%s] %s\n", c.now().Format("15:04:05"), summary)
		return nil
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, titleStyle.Render(summary))
	if len(stats) == 0 {
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Agent", "Strategy", "Initial", "Current", "Profit", "ROI", "Trades", "Iter", "Status")
	for _, s := range stats {
		table.Append(
			s.Agent,
			s.Strategy,
			fmt.Sprintf("$%.2f", s.Initial),
			fmt.Sprintf("$%.2f", s.Current),
			fmt.Sprintf("$%+.2f", s.Profit),
			fmt.Sprintf("%+.1f%%", s.ROI),
			fmt.Sprintf("%d", s.Trades),
			fmt.Sprintf("%d", s.Iterations),
			orDash(s.Status),
		)
	}
	return table.Render()
}

// Markets imprime la vista negociable actual.
func (c *Console) Markets(_ context.Context, markets []domain.MarketSnapshot) error {
	now := c.now()
	if len(markets) == 0 {
		fmt.Fprintf(c.out, "[%s] no tradeable markets\n", now.Format("15:04:05"))
		return nil
	}

	if c.format == FormatCompact {
		for _, m := range markets {
			fmt.Fprintf(c.out, "%s %s %s mid=%s vol=%.0f\n",
				shortID(m.TokenID), compactName(domain.TruncateQuestion(m.Question, m.MarketID, 60), 40),
				m.Outcome, priceLabel(m), m.Volume)
		}
		return nil
	}

	fmt.Fprintln(c.out, titleStyle.Render(fmt.Sprintf("[%s] %d tradeable instruments", now.Format("15:04:05"), len(markets))))
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Outcome", "Bid", "Ask", "Mid", "Spread", "Vol 24h", "Liquidity", "Ends")
	for i, m := range markets {
		table.Append(
			fmt.Sprintf("%d", i+1),
			domain.TruncateQuestion(m.Question, m.MarketID, 38),
			m.Outcome,
			fmt.Sprintf("%.3f", m.BestBid),
			fmt.Sprintf("%.3f", m.BestAsk),
			priceLabel(m),
			fmt.Sprintf("%.3f", m.Spread()),
			fmt.Sprintf("$%.0f", m.Volume),
			fmt.Sprintf("$%.0f", m.Liquidity),
			endDateLabel(m, now),
		)
	}
	return table.Render()
}

func resultLabel(r domain.DispatchResult) string {
	if r.Executed {
		return "OK"
	}
	if r.Reason == "" {
		return "REJECTED"
	}
	return "REJECTED: " + truncate(r.Reason, 40)
}

func priceLabel(m domain.MarketSnapshot) string {
	if !m.HasPrice {
		return "-"
	}
	return fmt.Sprintf("%.3f", m.Price)
}

func endDateLabel(m domain.MarketSnapshot, now time.Time) string {
	if m.EndDate.IsZero() {
		return "-"
	}
	hours := m.HoursToResolution(now)
	if hours < 48 {
		return fmt.Sprintf("%s (!%.0fh)", m.EndDate.Format("01-02"), hours)
	}
	return m.EndDate.Format("2006-01-02")
}

func signed(profit, roi float64) string {
	label := fmt.Sprintf("%+.2f (%+.1f%%)", profit, roi)
	switch {
	case profit > 0:
		return profitStyle.Render(label)
	case profit < 0:
		return lossStyle.Render(label)
	default:
		return label
	}
}

func shortID(id string) string {
	if len(id) > 14 {
		return id[:6] + "…" + id[len(id)-6:]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func compactName(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := s[:maxLen]
	if idx := strings.LastIndex(cut, " "); idx > maxLen/2 {
		cut = cut[:idx]
	}
	return cut + "…"
}
