package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/game"
	"github.com/scythe504/mathquest-backend/internal/notify"
)

var (
	errEmptyCommand   = errors.New("empty command")
	errUnknownCommand = errors.New("unknown command")
	errMissingArg     = errors.New("missing argument")
)

type command struct {
	name string
	arg  string
}

// commandArgs lists every command and whether it takes an argument.
var commandArgs = map[string]bool{
	"find":       false,
	"bot":        false,
	"private":    false,
	"open":       false,
	"join":       true,
	"rooms":      false,
	"lobby-join": true,
	"a":          true,
	"use":        true,
	"buy":        true,
	"shop":       false,
	"rematch":    false,
	"cancel":     false,
	"status":     false,
	"help":       false,
	"quit":       false,
}

const helpText = `commands:
  find            search for an opponent
  bot             duel the bot
  private | open  host a room
  join CODE       join a room by code
  rooms           list open rooms
  lobby-join ID   join a listed room
  a N             answer the current question
  use ITEM        use time_potion, double_points or shield
  shop | buy ITEM browse or buy items
  rematch | cancel | status | quit`

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, errEmptyCommand
	}
	cmd := command{name: strings.ToLower(fields[0])}
	if cmd.name == "answer" {
		cmd.name = "a"
	}
	needsArg, ok := commandArgs[cmd.name]
	if !ok {
		return command{}, fmt.Errorf("%w: %s", errUnknownCommand, fields[0])
	}
	if needsArg {
		if len(fields) < 2 {
			return command{}, fmt.Errorf("%w: %s", errMissingArg, cmd.name)
		}
		cmd.arg = strings.Join(fields[1:], " ")
	}
	return cmd, nil
}

// console prints engine events and notifications. Both arrive from
// several goroutines.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *console) Notify(message string, severity notify.Severity) {
	c.printf("[%s] %s", severity, message)
}

func (c *console) Event(ev game.Event) {
	if line := render(ev); line != "" {
		c.printf("%s", line)
	}
}

func (c *console) rooms(rooms []internal.RoomListing) {
	if len(rooms) == 0 {
		c.printf("no open rooms")
		return
	}
	for _, r := range rooms {
		c.printf("  %s  hosted by %s", r.ID, r.HostName)
	}
}

func render(ev game.Event) string {
	s := ev.State
	switch ev.Type {
	case game.EventSearching:
		return "Searching for an opponent... (cancel to stop)"
	case game.EventHosting:
		return fmt.Sprintf("Room %s is open. Share the code and wait for a guest.", ev.RoomCode)
	case game.EventJoining:
		return fmt.Sprintf("Joined room %s, waiting for the host.", ev.RoomCode)
	case game.EventDuelStarted:
		return fmt.Sprintf("Duel started: %s vs %s", s.PlayerName, s.OpponentName)
	case game.EventQuestion:
		return fmt.Sprintf("Round %d: %s  (%ds)", s.Round, s.Question, s.TimeLeft)
	case game.EventTick:
		if s.TimeLeft <= 3 && s.TimeLeft > 0 {
			return fmt.Sprintf("  %ds left", s.TimeLeft)
		}
		return ""
	case game.EventFeedback:
		return renderFeedback(ev.Feedback)
	case game.EventScores:
		return fmt.Sprintf("  you %d (%s)  %s %d (%s)",
			s.PlayerScore, hearts(s.PlayerLives), s.OpponentName, s.OpponentScore, hearts(s.OpponentLives))
	case game.EventItemUsed:
		return fmt.Sprintf("  used %s", ev.Item)
	case game.EventDuelEnded:
		return renderResult(ev.Result)
	case game.EventLobby:
		return "Back in the lobby."
	}
	return ""
}

func renderFeedback(f *game.Resolution) string {
	if f == nil {
		return ""
	}
	var sb strings.Builder
	switch {
	case f.Correct:
		fmt.Fprintf(&sb, "  Correct! +%d", f.Points)
		if f.Bonus > 0 {
			fmt.Fprintf(&sb, " (streak +%d)", f.Bonus)
		}
	case f.Timeout:
		fmt.Fprintf(&sb, "  Time's up! The answer was %d", f.Answer)
	default:
		fmt.Fprintf(&sb, "  Wrong! The answer was %d", f.Answer)
	}
	if f.ShieldUsed {
		sb.WriteString(", shield held")
	}
	if f.LifeLost {
		sb.WriteString(", life lost")
	}
	return sb.String()
}

func renderResult(r *game.Result) string {
	if r == nil {
		return ""
	}
	title := map[game.Outcome]string{
		game.OutcomeVictory: "VICTORY",
		game.OutcomeDefeat:  "DEFEAT",
		game.OutcomeDraw:    "DRAW",
	}[r.Outcome]
	return fmt.Sprintf("%s (%s)\n  %s %d vs %s %d after %d rounds\n  accuracy %d%%, best streak %d, +%d points",
		title, r.Reason, r.PlayerName, r.PlayerScore, r.OpponentName, r.OpponentScore,
		r.Rounds, r.Accuracy, r.BestStreak, r.Reward)
}

func hearts(lives int) string {
	if lives <= 0 {
		return "out"
	}
	return strings.Repeat("♥", lives)
}
