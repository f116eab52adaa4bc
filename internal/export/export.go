package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/rovshanmuradov/dice-roll/internal/storage/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format         ExportFormat
	StartTime      time.Time
	EndTime        time.Time
	CurrencyFilter string // Mint, or SOL for native bets
	BettorFilter   string
	OnlyWins       bool
	OutputDir      string
}

// BetExporter writes journaled bets to files.
type BetExporter struct {
	logger *zap.Logger
}

// NewBetExporter creates a new bet exporter
func NewBetExporter(logger *zap.Logger) *BetExporter {
	return &BetExporter{
		logger: logger.Named("export"),
	}
}

// ExportBets exports bets based on the provided options
func (be *BetExporter) ExportBets(bets []*models.Bet, options ExportOptions) (string, error) {
	filtered := be.filterBets(bets, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no bets match the export criteria")
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].SettledAt.Before(filtered[j].SettledAt)
	})

	outputPath := filepath.Join(options.OutputDir, be.generateFilename(options))
	if err := os.MkdirAll(options.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	var err error
	switch options.Format {
	case FormatCSV:
		err = be.exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = be.exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	be.logger.Info("Bets exported",
		zap.String("file", outputPath),
		zap.Int("count", len(filtered)),
		zap.String("format", string(options.Format)))
	return outputPath, nil
}

func (be *BetExporter) filterBets(bets []*models.Bet, options ExportOptions) []*models.Bet {
	var filtered []*models.Bet
	for _, bet := range bets {
		if !options.StartTime.IsZero() && bet.SettledAt.Before(options.StartTime) {
			continue
		}
		if !options.EndTime.IsZero() && !bet.SettledAt.Before(options.EndTime) {
			continue
		}
		if options.CurrencyFilter != "" && bet.Currency != options.CurrencyFilter {
			continue
		}
		if options.BettorFilter != "" && bet.Bettor != options.BettorFilter {
			continue
		}
		if options.OnlyWins && !bet.IsWin {
			continue
		}
		filtered = append(filtered, bet)
	}
	return filtered
}

func (be *BetExporter) generateFilename(options ExportOptions) string {
	timestamp := time.Now().Format("20060102_150405")

	prefix := "bets_all"
	if options.OnlyWins {
		prefix = "bets_wins"
	}
	if c := options.CurrencyFilter; c != "" {
		if len(c) > 8 {
			c = c[:8]
		}
		prefix += "_" + c
	}
	return fmt.Sprintf("%s_%s.%s", prefix, timestamp, options.Format)
}

// CSVHeaders lists the columns written by the CSV export.
func CSVHeaders() []string {
	return []string{"settled_at", "bettor", "currency", "amount", "payout", "is_win"}
}

func betToCSV(bet *models.Bet) []string {
	return []string{
		bet.SettledAt.UTC().Format(time.RFC3339),
		bet.Bettor,
		bet.Currency,
		strconv.FormatUint(bet.Amount, 10),
		strconv.FormatUint(bet.Payout, 10),
		strconv.FormatBool(bet.IsWin),
	}
}

func (be *BetExporter) exportToCSV(bets []*models.Bet, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, bet := range bets {
		if err := writer.Write(betToCSV(bet)); err != nil {
			return fmt.Errorf("failed to write bet: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportedBet is the JSON form of a bet.
type ExportedBet struct {
	SettledAt time.Time `json:"settled_at"`
	Bettor    string    `json:"bettor"`
	Currency  string    `json:"currency"`
	Amount    uint64    `json:"amount"`
	Payout    uint64    `json:"payout"`
	IsWin     bool      `json:"is_win"`
}

func toExported(bets []*models.Bet) []ExportedBet {
	out := make([]ExportedBet, 0, len(bets))
	for _, b := range bets {
		out = append(out, ExportedBet{
			SettledAt: b.SettledAt.UTC(),
			Bettor:    b.Bettor,
			Currency:  b.Currency,
			Amount:    b.Amount,
			Payout:    b.Payout,
			IsWin:     b.IsWin,
		})
	}
	return out
}

func writeJSON(outputPath string, v interface{}) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func (be *BetExporter) exportToJSON(bets []*models.Bet, outputPath string) error {
	return writeJSON(outputPath, struct {
		ExportTime time.Time     `json:"export_time"`
		BetCount   int           `json:"bet_count"`
		Summary    ExportSummary `json:"summary"`
		Bets       []ExportedBet `json:"bets"`
	}{
		ExportTime: time.Now().UTC(),
		BetCount:   len(bets),
		Summary:    calculateSummary(bets),
		Bets:       toExported(bets),
	})
}

// CurrencySummary aggregates the bets of one currency in base units.
// HouseNet is what the pool kept: stakes minus payouts.
type CurrencySummary struct {
	Bets     int             `json:"bets"`
	Wins     int             `json:"wins"`
	Losses   int             `json:"losses"`
	Staked   uint64          `json:"staked"`
	PaidOut  uint64          `json:"paid_out"`
	HouseNet decimal.Decimal `json:"house_net"`
	WinRate  float64         `json:"win_rate"`
}

// ExportSummary contains summary statistics for exported bets
type ExportSummary struct {
	TotalBets      int                        `json:"total_bets"`
	UniqueBettors  int                        `json:"unique_bettors"`
	ByCurrency     map[string]CurrencySummary `json:"by_currency"`
	StartDate      time.Time                  `json:"start_date"`
	EndDate        time.Time                  `json:"end_date"`
	OverallWinRate float64                    `json:"overall_win_rate"`
}

// calculateSummary expects bets sorted by settlement time.
func calculateSummary(bets []*models.Bet) ExportSummary {
	summary := ExportSummary{
		TotalBets:  len(bets),
		ByCurrency: make(map[string]CurrencySummary),
	}
	if len(bets) == 0 {
		return summary
	}

	summary.StartDate = bets[0].SettledAt.UTC()
	summary.EndDate = bets[len(bets)-1].SettledAt.UTC()

	bettors := make(map[string]struct{})
	wins := 0
	for _, bet := range bets {
		bettors[bet.Bettor] = struct{}{}

		cs := summary.ByCurrency[bet.Currency]
		cs.Bets++
		cs.Staked += bet.Amount
		cs.PaidOut += bet.Payout
		if bet.IsWin {
			cs.Wins++
			wins++
		} else {
			cs.Losses++
		}
		summary.ByCurrency[bet.Currency] = cs
	}

	for currency, cs := range summary.ByCurrency {
		cs.HouseNet = units(cs.Staked).Sub(units(cs.PaidOut))
		cs.WinRate = float64(cs.Wins) / float64(cs.Bets) * 100
		summary.ByCurrency[currency] = cs
	}
	summary.UniqueBettors = len(bettors)
	summary.OverallWinRate = float64(wins) / float64(len(bets)) * 100
	return summary
}

func units(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// HourlyStats represents betting statistics for an hour
type HourlyStats struct {
	Hour     int `json:"hour"`
	BetCount int `json:"bet_count"`
	Wins     int `json:"wins"`
	Losses   int `json:"losses"`
}

// DailyReport represents a daily betting report
type DailyReport struct {
	Date            time.Time     `json:"date"`
	BetCount        int           `json:"bet_count"`
	Summary         ExportSummary `json:"summary"`
	HourlyBreakdown []HourlyStats `json:"hourly_breakdown"`
	Bets            []ExportedBet `json:"bets"`
}

// ExportDailyReport exports the bets settled on date's UTC day. It writes
// nothing and returns an empty path when there are none.
func (be *BetExporter) ExportDailyReport(bets []*models.Bet, date time.Time, outputDir string) (string, error) {
	date = date.UTC()
	startOfDay := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	filtered := be.filterBets(bets, ExportOptions{
		StartTime: startOfDay,
		EndTime:   startOfDay.Add(24 * time.Hour),
	})
	if len(filtered) == 0 {
		be.logger.Info("No bets for daily report", zap.Time("date", startOfDay))
		return "", nil
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].SettledAt.Before(filtered[j].SettledAt)
	})

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", startOfDay.Format("20060102")))

	report := DailyReport{
		Date:            startOfDay,
		BetCount:        len(filtered),
		Summary:         calculateSummary(filtered),
		HourlyBreakdown: calculateHourlyBreakdown(filtered),
		Bets:            toExported(filtered),
	}
	if err := writeJSON(outputPath, report); err != nil {
		return "", err
	}

	be.logger.Info("Daily report exported",
		zap.String("file", outputPath),
		zap.Time("date", startOfDay),
		zap.Int("bets", len(filtered)))
	return outputPath, nil
}

func calculateHourlyBreakdown(bets []*models.Bet) []HourlyStats {
	hourly := make(map[int]*HourlyStats)
	for _, bet := range bets {
		hour := bet.SettledAt.UTC().Hour()
		stats, ok := hourly[hour]
		if !ok {
			stats = &HourlyStats{Hour: hour}
			hourly[hour] = stats
		}
		stats.BetCount++
		if bet.IsWin {
			stats.Wins++
		} else {
			stats.Losses++
		}
	}

	var breakdown []HourlyStats
	for hour := 0; hour < 24; hour++ {
		if stats, ok := hourly[hour]; ok {
			breakdown = append(breakdown, *stats)
		}
	}
	return breakdown
}
