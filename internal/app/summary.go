package app

import (
	"fmt"
	"strings"
	"time"

	"arena/internal/agent"
	"arena/internal/config"
)

type StartupSummary struct {
	Interval     time.Duration
	MarketSource string
	Storage      string
	HTTPAddr     string
	Agents       []AgentSummary
}

type AgentSummary struct {
	ID          string
	Name        string
	ProviderID  string
	Symbols     []string
	InitialCash float64
	Equity      float64
	Positions   int
}

func summarizeAgent(ag *agent.Agent, ac config.AgentConfig) AgentSummary {
	st := ag.State()
	return AgentSummary{
		ID:          st.ID,
		Name:        st.Name,
		ProviderID:  st.ProviderID,
		Symbols:     st.Symbols,
		InitialCash: ac.InitialCash,
		Equity:      st.Portfolio.Equity,
		Positions:   len(st.Portfolio.Positions),
	}
}

func (s *StartupSummary) Print() {
	fmt.Print(s.String())
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	rule := strings.Repeat("=", 80)
	b.WriteString(rule + "\n")
	title := "ARENA STARTUP SUMMARY"
	fmt.Fprintf(&b, "%*s\n", 40+len(title)/2, title)
	b.WriteString(rule + "\n")

	b.WriteString("[ENGINE]\n")
	fmt.Fprintf(&b, "  interval: %s\n", s.Interval)
	fmt.Fprintf(&b, "  market:   %s\n", s.MarketSource)
	fmt.Fprintf(&b, "  storage:  %s\n", s.Storage)
	fmt.Fprintf(&b, "  http:     %s\n", orDash(s.HTTPAddr))
	b.WriteString("\n")

	b.WriteString("[AGENTS]\n")
	if len(s.Agents) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, a := range s.Agents {
		fmt.Fprintf(&b, "  > %s (%s)\n", a.ID, a.Name)
		fmt.Fprintf(&b, "    provider: %s\n", a.ProviderID)
		fmt.Fprintf(&b, "    symbols:  %s\n", formatList(a.Symbols))
		fmt.Fprintf(&b, "    equity:   %.2f / %.2f initial, %d open\n", a.Equity, a.InitialCash, a.Positions)
	}
	b.WriteString(rule + "\n")
	return b.String()
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
