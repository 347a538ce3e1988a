package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/triarbot/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EstimatedFees returns the fee cost of running amount through three legs,
// amount*(1-(1-fee)^3).
func EstimatedFees(amount, fee decimal.Decimal) decimal.Decimal {
	keep := decimal.NewFromInt(1).Sub(fee)
	return amount.Mul(decimal.NewFromInt(1).Sub(keep.Mul(keep).Mul(keep)))
}

// FormatOpportunity renders a promoted opportunity with a worked example on
// the simulated starting amount.
func FormatOpportunity(opp domain.PromotedOpportunity, fee decimal.Decimal) (title, body string) {
	title = "Arbitrage opportunity"
	if opp.Anomaly {
		title = "Anomalous arbitrage opportunity"
	}
	asset := opp.StartAsset()
	start := opp.StartAmount
	gain := start.Mul(opp.ProfitFraction())

	var b strings.Builder
	fmt.Fprintf(&b, "Path: `%s`\n", opp.PathString())
	fmt.Fprintf(&b, "Net profit: `%s%%`\n\n", opp.ProfitPercent().StringFixed(4))
	fmt.Fprintf(&b, "Example on %s %s:\n", start.String(), asset)
	fmt.Fprintf(&b, "- Invested: `%s %s`\n", start.StringFixed(2), asset)
	fmt.Fprintf(&b, "- Final: `%s %s`\n", start.Add(gain).StringFixed(4), asset)
	fmt.Fprintf(&b, "- Net gain: `%s %s`\n", gain.StringFixed(4), asset)
	fmt.Fprintf(&b, "- Estimated fees: `%s %s`\n\n", EstimatedFees(start, fee).StringFixed(4), asset)
	b.WriteString("Legs (prices used):\n")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&b, "%d. `%s→%s` (`%s` %s @ `%s`)\n",
			i+1, opp.Path[i], opp.Path[i+1], opp.Pairs[i], opp.Sides[i], opp.PricesUsed[i].StringFixed(8))
	}
	fmt.Fprintf(&b, "\nInvestable now: `%s %s`\n", opp.Investable.String(), asset)
	fmt.Fprintf(&b, "Seen so far: `%d`\n", opp.LifetimeSeen)
	fmt.Fprintf(&b, "Time: `%s`", opp.DetectedAt.UTC().Format("15:04:05"))
	return title, b.String()
}

// FormatTrade renders a trade result and returns the event it belongs to.
// Rejected attempts are reported as failures.
func FormatTrade(res domain.TradeResult) (event, title, body string) {
	path := strings.Join(res.Data.Path[:], "→")
	asset := res.Data.Path[0]
	elapsed := res.Duration.Round(10 * time.Millisecond)
	mode := ""
	if res.DryRun {
		mode = " (dry run)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Path: `%s`\n", path)
	if res.Status == domain.TradeSuccess {
		event = EventTradeSuccess
		if res.Profit.IsNegative() {
			title = "Arbitrage completed at a loss" + mode
			fmt.Fprintf(&b, "Loss: `%s%%`\n", res.ProfitPercentage.StringFixed(4))
			fmt.Fprintf(&b, "Amount lost: `%s %s`\n", res.Profit.Abs().StringFixed(4), asset)
		} else {
			title = "Arbitrage completed" + mode
			fmt.Fprintf(&b, "Profit: `%s%%`\n", res.ProfitPercentage.StringFixed(4))
			fmt.Fprintf(&b, "Gain: `%s %s`\n", res.Profit.StringFixed(4), asset)
		}
		fmt.Fprintf(&b, "Time: `%s`", elapsed)
		return event, title, b.String()
	}

	event = EventTradeFailed
	title = "Arbitrage failed" + mode
	if res.FailedAt != "" {
		fmt.Fprintf(&b, "Failed at: `%s`\n", res.FailedAt)
	}
	if res.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", res.Error)
	}
	if liq := res.Liquidation; liq != nil {
		fmt.Fprintf(&b, "Liquidation: `%s %s` %s\n", liq.Side, liq.Symbol, liq.Status)
	}
	fmt.Fprintf(&b, "Time: `%s`", elapsed)
	return event, title, b.String()
}

// FormatStartup renders the message sent once the bot is running.
func FormatStartup(mode string, symbols, triangles int, dryRun bool) (title, body string) {
	title = "Triangular arbitrage bot started"
	body = fmt.Sprintf("Mode: `%s`\nSymbols: `%d`\nTriangles: `%d`", mode, symbols, triangles)
	if mode == "trade" {
		body += fmt.Sprintf("\nDry run: `%t`", dryRun)
	}
	return title, body
}

// Summary carries the figures of the periodic summary message.
type Summary struct {
	Uptime            time.Duration
	Found             int64
	LowProfitPositive int64
	Trades            int64
	TradeSuccesses    int64
}

// FormatSummary renders the periodic summary.
func FormatSummary(s Summary) (title, body string) {
	title = "Hourly summary"
	var b strings.Builder
	fmt.Fprintf(&b, "Uptime: `%s`\n", FormatUptime(s.Uptime))
	fmt.Fprintf(&b, "Opportunities found: `%d`\n", s.Found)
	fmt.Fprintf(&b, "Near misses (below threshold): `%d`", s.LowProfitPositive)
	if s.Trades > 0 {
		fmt.Fprintf(&b, "\nTrades: `%d` (`%d` successful)", s.Trades, s.TradeSuccesses)
	}
	return title, b.String()
}

// FormatUptime renders d as "<days>d <hours>h <minutes>m".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	return fmt.Sprintf("%dd %dh %dm", days, hours, d/time.Minute)
}
