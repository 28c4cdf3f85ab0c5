package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/roach88/claimrecon/internal/claim"
	"github.com/roach88/claimrecon/internal/engine"
	"github.com/roach88/claimrecon/internal/harness"
)

var (
	styleLabel       = lipgloss.NewStyle().Bold(true)
	styleConfirmed   = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7"))
	styleUnconfirmed = lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F"))
	styleFailed      = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C"))
)

func renderStatus(s claim.Status) string {
	if s == claim.StatusConfirmed {
		return styleConfirmed.Render(string(s))
	}
	return styleUnconfirmed.Render(string(s))
}

// claimView prints one claim as label/value lines.
type claimView struct {
	claim.Claim
}

func (v claimView) String() string {
	token := v.VerificationToken
	if token == "" {
		token = "-"
	}
	var b strings.Builder
	for _, kv := range [][2]string{
		{"id", v.ID},
		{"subject", v.SubjectID},
		{"kind", v.Kind},
		{"token", token},
		{"status", renderStatus(v.Status)},
		{"retry_count", strconv.Itoa(v.RetryCount)},
		{"created_at", v.CreatedAt.Format(time.RFC3339)},
		{"updated_at", v.UpdatedAt.Format(time.RFC3339)},
	} {
		fmt.Fprintf(&b, "%s %s\n", styleLabel.Render(fmt.Sprintf("%-12s", kv[0]+":")), kv[1])
	}
	return b.String()
}

// claimList prints claims as a table.
type claimList struct {
	Claims []claim.Claim `json:"claims"`
	Count  int           `json:"count"`
}

func newClaimList(claims []claim.Claim) claimList {
	if claims == nil {
		claims = []claim.Claim{}
	}
	return claimList{Claims: claims, Count: len(claims)}
}

func (l claimList) String() string {
	if l.Count == 0 {
		return "no claims\n"
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "SUBJECT", "KIND", "TOKEN", "STATUS", "RETRIES")
	for _, c := range l.Claims {
		t.Row(c.ID, c.SubjectID, c.Kind, c.VerificationToken, renderStatus(c.Status), strconv.Itoa(c.RetryCount))
	}
	return t.Render() + "\n" + fmt.Sprintf("%d claim(s)\n", l.Count)
}

// reportView prints a scan report.
type reportView struct {
	engine.ScanReport
}

func (v reportView) String() string {
	r := v.ScanReport
	return fmt.Sprintf("scan finished in %s: pending=%d skipped=%d checked=%d confirmed=%d not_yet_confirmed=%d oracle_errors=%d stale_writes=%d interrupted=%d\n",
		r.Duration().Round(time.Millisecond), r.Pending, r.Skipped, r.Checked, r.Confirmed,
		r.NotYetConfirmed, r.OracleErrors, r.StaleWrites, r.Interrupted)
}

// simulationView prints a harness result.
type simulationView struct {
	Scenario string `json:"scenario"`
	*harness.Result
}

func (v simulationView) String() string {
	var b strings.Builder
	verdict := styleConfirmed.Render("PASS")
	if !v.Pass {
		verdict = styleFailed.Render("FAIL")
	}
	fmt.Fprintf(&b, "%s %s (%d scans)\n", verdict, v.Scenario, len(v.Scans))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "SUBJECT", "KIND", "STATUS", "RETRIES", "CALLS")
	for _, c := range v.Final() {
		t.Row(c.ID, c.Subject, c.Kind, c.Status, strconv.Itoa(c.RetryCount), strconv.Itoa(c.OracleCalls))
	}
	b.WriteString(t.Render())
	b.WriteString("\n")

	for _, e := range v.Errors {
		b.WriteString(e)
		b.WriteString("\n")
	}
	return b.String()
}
