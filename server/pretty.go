package main

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pterm/pterm"

	"x402-arena/server/arena"
	"x402-arena/server/engine"
)

var debugState bool

func section(title string) { pterm.DefaultSection.Println(title) }
func sub(title string)     { pterm.Info.Println(title) }

func modelShort(m string) string {
	m = strings.TrimSpace(m)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	if len(m) <= 28 {
		return m
	}
	return m[:28]
}

func cardsText(cs []engine.Card) string {
	if len(cs) == 0 {
		return "-"
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

func playerBox(p engine.Player, dealer bool) string {
	box := pterm.DefaultBox.WithLeftPadding(3).WithRightPadding(3).WithTopPadding(0).WithBottomPadding(0)
	status := pterm.LightGreen("Active")
	switch {
	case p.Folded:
		status = pterm.LightRed("Folded")
	case p.IsAllIn:
		status = pterm.LightMagenta("All in")
	}
	title := p.Name
	if dealer {
		title += " (D)"
	}
	return box.WithTitle(pterm.LightCyan(title)).WithTitleTopLeft().Sprintf(
		"%s\nTokens: %d\nBet: %d\nModel: %s\n%s",
		status, p.Tokens, p.CurrentBet, modelShort(p.Model), pterm.BgGreen.Sprint(" "+cardsText(p.Hand)+" "))
}

func boardBox(s *engine.GameState) string {
	box := pterm.DefaultBox.WithLeftPadding(3).WithRightPadding(3)
	return box.WithTitle(pterm.LightYellow("|"+strings.ToUpper(string(s.Stage))+"|")).WithTitleTopCenter().Sprintf(
		"Board: %s\nPot: %d  Bet: %d\nBlinds: %d/%d", cardsText(s.CommunityCards), s.Pot, s.CurrentBet, s.SmallBlind, s.BigBlind)
}

func printTable(s *engine.GameState) {
	var seats []pterm.Panel
	for i, p := range s.Players {
		seats = append(seats, pterm.Panel{Data: playerBox(p, i == s.DealerIndex)})
	}
	pterm.DefaultPanel.WithPanels([][]pterm.Panel{seats, {{Data: boardBox(s)}}}).Render()
}

func printRoundStart(s *engine.GameState) {
	section(fmt.Sprintf("Round %d", s.Round))
	printTable(s)
	dumpState(s)
}

func printMove(m arena.Move, _ *engine.GameState) {
	tag := ""
	if m.Research {
		tag += pterm.LightBlue(" [research]")
	}
	if m.Fallback {
		tag += pterm.Yellow(" [fallback]")
	}
	pterm.Printfln("%s %s %s%s", pterm.Gray(string(m.Stage)), pterm.LightCyan(m.PlayerName), pterm.Bold.Sprint(m.Display), tag)
	if m.Reasoning != "" {
		pterm.Println(pterm.Gray("  " + truncate(m.Reasoning, 240)))
	}
}

func printRoundSettled(s *engine.GameState) {
	r := s.Result
	if r == nil {
		return
	}
	var body string
	if r.Uncontested {
		body = pterm.Sprintfln("%s takes down %d", pterm.LightCyan(r.WinnerName), r.Amount)
	} else {
		body = pterm.Sprintfln("Board: %s", cardsText(s.CommunityCards))
		for _, p := range s.Players {
			label := r.Hands[p.ID].Name
			if d := r.Described[p.ID]; d != "" {
				label += ", " + d
			}
			body += pterm.Sprintfln("%s: %s (%s)", p.Name, cardsText(p.Hand), label)
		}
		body += pterm.Sprintfln("%s wins %d", pterm.LightCyan(r.WinnerName), r.Amount)
	}
	pterm.DefaultBox.WithTitle(pterm.LightGreen("|SHOWDOWN|")).WithTitleTopCenter().Println(strings.TrimRight(body, "\n"))
	dumpState(s)
}

func printGameResult(n int, res arena.GameResult, s *engine.GameState) {
	winner := "nobody (even stacks)"
	if p := s.Player(res.Winner); p != nil {
		winner = p.Name
	}
	line := fmt.Sprintf("Game %d: %s wins after %d rounds", n, winner, res.Rounds)
	if res.Capped {
		line += " (round cap)"
	}
	pterm.Success.Println(line)
}

func printSummary(sum RatingsSummary) {
	section("Series")
	rows := [][]string{{"Agent", "Strategy", "Games won", "Rounds won", "Showdowns", "F/X/C/R/A", "AF", "Research", "Net", "bb/100"}}
	for _, a := range sum.Agents {
		rows = append(rows, []string{
			a.Name + " (" + modelShort(a.Model) + ")",
			a.Strategy,
			fmt.Sprintf("%d/%d", a.GameWins, a.Games),
			fmt.Sprintf("%d/%d", a.RoundsWon, a.Rounds),
			fmt.Sprint(a.ShowdownsWon),
			fmt.Sprintf("%d/%d/%d/%d/%d", a.Folds, a.Checks, a.Calls, a.Raises, a.AllIns),
			fmt.Sprintf("%.2f", a.AF()),
			fmt.Sprintf("%d (%d)", a.Research, a.ResearchSpent),
			fmt.Sprint(a.NetChips),
			fmt.Sprintf("%.1f", a.BBPer100(sum.BigBlind)),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(rows).Render(); err != nil {
		pterm.Error.Println(err)
	}
	pterm.Info.Printfln("Elo A %.1f | B %.1f (games=%d)", sum.Elo.A, sum.Elo.B, sum.Elo.Games)
	pterm.Info.Printfln("A game win rate 95%% CI (Wilson) [%.3f, %.3f] over %d games", sum.WinRateA.Low, sum.WinRateA.High, sum.Games)
	pterm.Info.Printfln("A normalized margin 95%% CI (bootstrap) [%.4f, %.4f]", sum.MarginA.Low, sum.MarginA.High)
}

func dumpState(s *engine.GameState) {
	if !debugState {
		return
	}
	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, SortKeys: true}
	cfg.Dump(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
