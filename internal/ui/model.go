// internal/ui/model.go
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/fairlaunch/internal/curve"
	"github.com/rovshanmuradov/fairlaunch/internal/feed"
	"github.com/rovshanmuradov/fairlaunch/internal/logger"
	"github.com/rovshanmuradov/fairlaunch/internal/ui/component"
	"github.com/rovshanmuradov/fairlaunch/internal/ui/style"
)

const (
	maxTrades    = 12
	logLines     = 8
	sparkWidth   = 24
	defaultWidth = 100
)

type curveView struct {
	curve curve.BondingCurve
	spark *component.Sparkline
}

// Model is the launchpad dashboard.
type Model struct {
	src  Source
	logs *logger.Buffer
	keys KeyMap
	help help.Model
	bar  progress.Model

	config   *curve.GlobalConfig
	order    []solana.PublicKey
	curves   map[solana.PublicKey]*curveView
	trades   []curve.TradeRecord
	selected int

	showLogs bool
	closed   bool
	err      error
	width    int
}

// New creates a dashboard reading from src. logs may be nil.
func New(src Source, logs *logger.Buffer) Model {
	return Model{
		src:    src,
		logs:   logs,
		keys:   DefaultKeyMap(),
		help:   help.New(),
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(30)),
		curves: make(map[solana.PublicKey]*curveView),
		width:  defaultWidth,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(WaitForFeed(m.src), tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.bar.Width = max(10, msg.Width/3)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.selected > 0 {
				m.selected--
			}
		case key.Matches(msg, m.keys.Down):
			if m.selected < len(m.order)-1 {
				m.selected++
			}
		case key.Matches(msg, m.keys.ToggleLogs):
			m.showLogs = !m.showLogs
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
		return m, nil

	case FeedMsg:
		m.apply(msg.Message)
		return m, WaitForFeed(m.src)

	case FeedClosedMsg:
		m.closed = true
		m.err = msg.Err
		return m, nil

	case tickMsg:
		return m, tick()
	}
	return m, nil
}

func (m *Model) apply(msg feed.Message) {
	switch msg.Type {
	case feed.TypeSnapshot:
		m.config = msg.Config
		m.order = m.order[:0]
		m.curves = make(map[solana.PublicKey]*curveView, len(msg.Curves))
		for _, c := range msg.Curves {
			m.upsert(*c)
		}
	case feed.TypeConfig:
		m.config = msg.Config
	case feed.TypeLaunch:
		if msg.Curve != nil {
			m.upsert(*msg.Curve)
		}
	case feed.TypeTrade:
		if msg.Trade != nil {
			m.trade(*msg.Trade)
		}
	case feed.TypeCompleted:
		if msg.Completion == nil {
			return
		}
		if v, ok := m.curves[msg.Completion.Mint]; ok {
			v.curve.IsCompleted = true
		}
	}
}

func (m *Model) upsert(c curve.BondingCurve) {
	v, ok := m.curves[c.Mint]
	if !ok {
		v = &curveView{spark: component.NewSparkline(sparkWidth)}
		m.curves[c.Mint] = v
		m.order = append(m.order, c.Mint)
	}
	v.curve = c
	v.spark.Add(spotPrice(&c))
}

func (m *Model) trade(t curve.TradeRecord) {
	if v, ok := m.curves[t.Mint]; ok && t.Sequence > v.curve.TradeCount {
		v.curve.VirtualTokenReserves = t.VirtualTokenReserves
		v.curve.VirtualLamportReserves = t.VirtualLamportReserves
		v.curve.ActualLamportReserves = t.ActualLamportReserves
		v.curve.TradeCount = t.Sequence
		v.curve.IsCompleted = v.curve.IsCompleted || t.CompletedCurve
		v.curve.UpdatedAt = t.ExecutedAt
		v.spark.Add(spotPrice(&v.curve))
	}

	m.trades = append([]curve.TradeRecord{t}, m.trades...)
	if len(m.trades) > maxTrades {
		m.trades = m.trades[:maxTrades]
	}
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(style.Title.Render("FAIRLAUNCH"))
	b.WriteString("  ")
	b.WriteString(m.configLine())
	b.WriteString("\n\n")

	b.WriteString(style.Panel.Width(m.width - 4).Render(m.curvesView()))
	b.WriteString("\n")
	b.WriteString(style.Panel.Width(m.width - 4).Render(m.tradesView()))
	b.WriteString("\n")

	if m.showLogs {
		b.WriteString(style.Panel.Width(m.width - 4).Render(m.logsView()))
		b.WriteString("\n")
	}

	if m.closed {
		status := "feed closed"
		if m.err != nil {
			status = "feed lost: " + m.err.Error()
		}
		b.WriteString(style.Error.Render(status))
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) configLine() string {
	if m.config == nil {
		return style.Muted.Render("unconfigured")
	}
	return style.Muted.Render(fmt.Sprintf("threshold %s SOL  fees %s%% buy / %s%% sell  config v%d",
		formatSOL(m.config.CompletionThreshold),
		decimal.NewFromFloat(m.config.BuyFeePercent).String(),
		decimal.NewFromFloat(m.config.SellFeePercent).String(),
		m.config.Version))
}

func (m Model) curvesView() string {
	if len(m.order) == 0 {
		return style.Muted.Render("no curves launched yet")
	}

	var threshold uint64
	if m.config != nil {
		threshold = m.config.CompletionThreshold
	}

	rows := []string{style.Header.Render("Curves")}
	for i, mint := range m.order {
		v := m.curves[mint]
		cursor := "  "
		if i == m.selected {
			cursor = style.Title.Render("▸ ")
		}

		p := v.curve.Progress(threshold)
		status := fmt.Sprintf("%5.1f%%", p*100)
		if v.curve.IsCompleted {
			status = style.Done.Render("DONE  ")
		}

		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			cursor,
			lipgloss.NewStyle().Width(10).Render(v.curve.Symbol),
			m.bar.ViewAs(p), " ",
			status, "  ",
			v.spark.View(), " ", v.spark.Trend(),
			style.Muted.Render(fmt.Sprintf("  %d trades  %s SOL", v.curve.TradeCount, formatSOL(v.curve.ActualLamportReserves))),
		))
	}
	return strings.Join(rows, "\n")
}

func (m Model) tradesView() string {
	rows := []string{style.Header.Render("Recent trades")}
	if len(m.trades) == 0 {
		rows = append(rows, style.Muted.Render("waiting for trades"))
	}
	for _, t := range m.trades {
		side, in, out := style.Buy.Render("BUY "), formatSOL(t.AmountIn)+" SOL", fmt.Sprintf("%d tokens", t.AmountOut)
		if !t.IsBuy {
			side, in, out = style.Sell.Render("SELL"), fmt.Sprintf("%d tokens", t.AmountIn), formatSOL(t.AmountOut)+" SOL"
		}
		line := fmt.Sprintf("%s %s  %s #%d  %s → %s",
			t.ExecutedAt.Format("15:04:05"), side, short(t.Mint), t.Sequence, in, out)
		if t.CompletedCurve {
			line += "  " + style.Done.Render("completed")
		}
		rows = append(rows, line)
	}
	return strings.Join(rows, "\n")
}

func (m Model) logsView() string {
	rows := []string{style.Header.Render("Logs")}
	if m.logs == nil {
		return rows[0]
	}
	for _, e := range m.logs.Recent(logLines) {
		rows = append(rows, fmt.Sprintf("%s %-5s %s",
			e.Time.Format("15:04:05"), e.Level.CapitalString(), e.Message))
	}
	return strings.Join(rows, "\n")
}

// spotPrice is the marginal price in lamports per token.
func spotPrice(c *curve.BondingCurve) float64 {
	if c.VirtualTokenReserves == 0 {
		return 0
	}
	return float64(c.VirtualLamportReserves) / float64(c.VirtualTokenReserves)
}

func formatSOL(lamports uint64) string {
	return decimal.NewFromUint64(lamports).Shift(-9).StringFixed(3)
}

func short(k solana.PublicKey) string {
	s := k.String()
	if len(s) <= 8 {
		return s
	}
	return s[:4] + "…" + s[len(s)-4:]
}
