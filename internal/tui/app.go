package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/subsentry/internal/alert"
	"github.com/jask/subsentry/internal/config"
	"github.com/jask/subsentry/internal/service"
)

const alertLimit = 500

// App is the alert browser model.
type App struct {
	ctx           context.Context
	services      Services
	state         appState
	alerts        []service.Alert
	subs          []service.Subscription
	alertCursor   int
	subCursor     int
	showDismissed bool
	busy          bool
	status        string
	tz            *time.Location
	currency      string
	dateFormat    string
}

type Services struct {
	Insights  *service.InsightsService
	Recompute *service.Recomputer
}

type appState string

const (
	viewAlerts        appState = "alerts"
	viewSubscriptions appState = "subscriptions"
)

func New(ctx context.Context, ui config.UIConfig, services Services) *App {
	currency := ui.CurrencySymbol
	if currency == "" {
		currency = "$"
	}
	dateFormat := ui.DateFormat
	if dateFormat == "" {
		dateFormat = time.DateOnly
	}
	return &App{
		ctx:        ctx,
		services:   services,
		state:      viewAlerts,
		tz:         ui.Location(),
		currency:   currency,
		dateFormat: dateFormat,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadAlerts(), a.loadSubscriptions())
}

func (a *App) loadAlerts() tea.Cmd {
	includeDismissed := a.showDismissed
	return func() tea.Msg {
		list, err := a.services.Insights.Alerts(a.ctx, includeDismissed, alertLimit)
		if err != nil {
			return errMsg{err}
		}
		return alertsMsg(list)
	}
}

func (a *App) loadSubscriptions() tea.Cmd {
	return func() tea.Msg {
		list, err := a.services.Insights.Subscriptions(a.ctx)
		if err != nil {
			return errMsg{err}
		}
		return subscriptionsMsg(list)
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(m)
	case alertsMsg:
		a.alerts = []service.Alert(m)
		if a.alertCursor >= len(a.alerts) {
			a.alertCursor = max(0, len(a.alerts)-1)
		}
	case subscriptionsMsg:
		a.subs = []service.Subscription(m)
		if a.subCursor >= len(a.subs) {
			a.subCursor = max(0, len(a.subs)-1)
		}
	case statusMsg:
		a.status = string(m)
	case errMsg:
		a.busy = false
		a.status = "error: " + m.Error()
	case recomputeDoneMsg:
		a.busy = false
		a.status = fmt.Sprintf("recompute done: %d series, %d events", m.Result.Series, m.Result.Events)
		return a, tea.Batch(a.loadAlerts(), a.loadSubscriptions())
	}
	return a, nil
}

func (a *App) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "tab":
		if a.state == viewAlerts {
			a.state = viewSubscriptions
		} else {
			a.state = viewAlerts
		}
	case "up", "k":
		if a.state == viewAlerts && a.alertCursor > 0 {
			a.alertCursor--
		}
		if a.state == viewSubscriptions && a.subCursor > 0 {
			a.subCursor--
		}
	case "down", "j":
		if a.state == viewAlerts && a.alertCursor < len(a.alerts)-1 {
			a.alertCursor++
		}
		if a.state == viewSubscriptions && a.subCursor < len(a.subs)-1 {
			a.subCursor++
		}
	case "a":
		if a.state == viewAlerts {
			a.showDismissed = !a.showDismissed
			return a, a.loadAlerts()
		}
	case "x":
		if a.state == viewAlerts && len(a.alerts) > 0 {
			al := a.alerts[a.alertCursor]
			return a, a.dismissCmd(al.ID, !al.Dismissed)
		}
	case "r":
		if a.busy {
			a.status = "recompute already running"
			return a, nil
		}
		if a.services.Recompute == nil {
			a.status = "recompute not configured"
			return a, nil
		}
		a.busy = true
		a.status = "recomputing..."
		return a, a.recomputeCmd()
	}
	return a, nil
}

func (a *App) View() string {
	var body string
	switch a.state {
	case viewSubscriptions:
		body = a.renderSubscriptions()
	default:
		body = a.renderAlerts()
	}
	if a.status != "" {
		body += "\n" + statusStyle.Render(a.status)
	}
	return body
}

// commands
func (a *App) dismissCmd(id string, dismissed bool) tea.Cmd {
	return tea.Sequence(
		func() tea.Msg {
			if err := a.services.Insights.Dismiss(a.ctx, id, dismissed); err != nil {
				return errMsg{err}
			}
			if dismissed {
				return statusMsg("alert dismissed")
			}
			return statusMsg("alert restored")
		},
		a.loadAlerts(),
	)
}

func (a *App) recomputeCmd() tea.Cmd {
	return func() tea.Msg {
		res, err := a.services.Recompute.Run(a.ctx)
		if err != nil {
			return errMsg{err}
		}
		return recomputeDoneMsg{Result: res}
	}
}

// messages
type alertsMsg []service.Alert

type subscriptionsMsg []service.Subscription

type statusMsg string

type errMsg struct{ error }

type recomputeDoneMsg struct {
	Result service.RecomputeResult
}

// styles
var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle       = lipgloss.NewStyle().Faint(true)
	statusStyle    = lipgloss.NewStyle().Italic(true)
	severityStyles = map[alert.Severity]lipgloss.Style{
		alert.SeverityInfo: lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		alert.SeverityWarn: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		alert.SeverityHigh: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
)

func (a *App) renderAlerts() string {
	heading := "Alerts"
	if a.showDismissed {
		heading += " (including dismissed)"
	}
	out := titleStyle.Render(heading) + "\n"
	if len(a.alerts) == 0 {
		out += "No alerts.\n"
	}
	for i, al := range a.alerts {
		marker := " "
		if i == a.alertCursor {
			marker = "▶"
		}
		sev := severityStyles[al.Severity].Render(fmt.Sprintf("%-4s", al.Severity))
		line := fmt.Sprintf("%s %s  %s  %s", marker, al.CreatedAt.In(a.tz).Format(a.dateFormat), sev, al.Title)
		if al.Dismissed {
			line = dimStyle.Render(line + "  [dismissed]")
		}
		out += line + "\n"
	}
	if len(a.alerts) > 0 {
		out += "\n" + titleStyle.Render("Evidence") + "\n"
		for _, l := range a.evidenceLines(a.alerts[a.alertCursor].Evidence) {
			out += "  " + l + "\n"
		}
	}
	out += "[tab] Subscriptions  [x] Dismiss/restore  [a] Toggle dismissed  [r] Recompute  [q] Quit"
	return out
}

func (a *App) renderSubscriptions() string {
	out := titleStyle.Render("Subscriptions") + "\n"
	if len(a.subs) == 0 {
		out += "No recurring charges detected.\n"
	}
	for i, s := range a.subs {
		marker := " "
		if i == a.subCursor {
			marker = "▶"
		}
		out += fmt.Sprintf("%s %-30s  every %3dd  %s  next %s  conf %.2f\n",
			marker, s.Merchant, s.PeriodDays, a.money(s.AmountMedian),
			s.NextExpectedAt.In(a.tz).Format(a.dateFormat), s.Confidence)
	}
	out += "[tab] Alerts  [r] Recompute  [q] Quit"
	return out
}

func (a *App) money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-%s%.2f", a.currency, -v)
	}
	return fmt.Sprintf("%s%.2f", a.currency, v)
}

func (a *App) date(t time.Time) string {
	return t.In(a.tz).Format(a.dateFormat)
}

// evidenceLines renders the selected alert's evidence as short text lines.
func (a *App) evidenceLines(ev alert.Evidence) []string {
	switch e := ev.(type) {
	case alert.NewSubscription:
		lines := []string{fmt.Sprintf("%s every %d days (confidence %.2f)", e.Merchant, e.PeriodDays, e.Confidence)}
		return append(lines, a.pointLines(e.LastN)...)
	case alert.PriceChange:
		lines := []string{
			fmt.Sprintf("baseline median %s, last %s", a.money(e.BaselineMedian), a.money(e.LastAmount)),
			"rule: " + e.Rule,
		}
		return append(lines, a.pointLines(e.LastN)...)
	case alert.PossibleDuplicate:
		return []string{
			fmt.Sprintf("a: %s %s (%s)", a.date(e.A.Date), a.money(e.A.Amount), e.A.TxnID),
			fmt.Sprintf("b: %s %s (%s)", a.date(e.B.Date), a.money(e.B.Amount), e.B.TxnID),
			"rule: " + e.Rule,
		}
	case alert.SpendAnomaly:
		return []string{
			fmt.Sprintf("%s charged %s (z=%.1f)", e.Merchant, a.money(e.Amount), e.Z),
			fmt.Sprintf("baseline median %s, MAD %.2f", a.money(e.BaselineMedian), e.BaselineMAD),
		}
	case alert.DailySpike:
		return []string{
			fmt.Sprintf("%s total %s (z=%.1f)", e.Day, a.money(e.Total), e.Z),
			fmt.Sprintf("baseline median %s, MAD %.2f", a.money(e.BaselineMedian), e.BaselineMAD),
		}
	case alert.Burst:
		return []string{
			fmt.Sprintf("%d small charges between %s and %s", e.Count,
				e.Start.In(a.tz).Format(time.Kitchen), e.End.In(a.tz).Format(time.Kitchen)),
			"transactions: " + strings.Join(e.TxnIDs, ", "),
		}
	case alert.Unreadable:
		return []string{alert.UnreadableMessage}
	default:
		return nil
	}
}

func (a *App) pointLines(points []alert.Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = fmt.Sprintf("- %s  %s", a.date(p.Date), a.money(p.Amount))
	}
	return out
}
