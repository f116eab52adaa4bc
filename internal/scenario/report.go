package scenario

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// PoolHolder names the pool in balance listings.
const PoolHolder = "pool"

// Balance is what one holder owns of one currency, in whole units.
type Balance struct {
	Holder   string
	Currency string
	Amount   decimal.Decimal
}

// Report summarises a scenario run.
type Report struct {
	Name     string
	Steps    []StepResult
	Balances []Balance
}

// Bets counts settled bets and wins.
func (r *Report) Bets() (total, wins int) {
	for _, s := range r.Steps {
		if s.Bet == nil {
			continue
		}
		total++
		if s.Bet.IsWin {
			wins++
		}
	}
	return total, wins
}

// Balance looks up the balance of holder in currency.
func (r *Report) Balance(holder, currency string) (decimal.Decimal, bool) {
	for _, b := range r.Balances {
		if b.Holder == holder && b.Currency == currency {
			return b.Amount, true
		}
	}
	return decimal.Zero, false
}

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00E5FF")).Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B4BCC8")).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7280"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// Render formats the report as two tables.
func (r *Report) Render() string {
	steps := newTable("#", "STEP", "ACTION", "RESULT", "BET", "SIGNATURE")
	for _, s := range r.Steps {
		steps.Row(fmt.Sprint(s.Index), s.Name, s.Action, resultText(s), betText(s), signatureText(s))
	}

	balances := newTable("HOLDER", "CURRENCY", "AMOUNT")
	for _, b := range r.Balances {
		balances.Row(b.Holder, b.Currency, b.Amount.String())
	}

	total, wins := r.Bets()
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Scenario %s", r.Name)))
	sb.WriteString("\n")
	sb.WriteString(steps.Render())
	sb.WriteString("\n")
	sb.WriteString(balances.Render())
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("bets: %d, wins: %d, losses: %d\n", total, wins, total-wins))
	return sb.String()
}

func resultText(s StepResult) string {
	switch {
	case s.Err == nil:
		return "ok"
	case s.Expected:
		return "rejected as expected"
	default:
		return "failed: " + s.Err.Error()
	}
}

func betText(s StepResult) string {
	if s.Bet == nil {
		return ""
	}
	if s.Bet.IsWin {
		return "win"
	}
	return "loss"
}

func signatureText(s StepResult) string {
	if s.Signature == (solana.Signature{}) {
		return ""
	}
	sig := s.Signature.String()
	if len(sig) > 12 {
		return sig[:12] + "..."
	}
	return sig
}
