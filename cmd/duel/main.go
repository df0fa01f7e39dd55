package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/scythe504/mathquest-backend/internal"
	"github.com/scythe504/mathquest-backend/internal/config"
	"github.com/scythe504/mathquest-backend/internal/game"
	"github.com/scythe504/mathquest-backend/internal/identity"
	"github.com/scythe504/mathquest-backend/internal/ledger"
	"github.com/scythe504/mathquest-backend/internal/localstore"
	"github.com/scythe504/mathquest-backend/internal/logger"
	"github.com/scythe504/mathquest-backend/internal/notify"
	"github.com/scythe504/mathquest-backend/internal/presence"
	"github.com/scythe504/mathquest-backend/internal/shop"
	"github.com/scythe504/mathquest-backend/internal/store"
)

const (
	dialTimeout  = 5 * time.Second
	requestLimit = 10 * time.Second
)

var errQuit = errors.New("quit")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type client struct {
	engine *game.Engine
	shop   *shop.Shop
	ledger *ledger.Ledger
	inv    *shop.Inventory
	out    *console
	log    zerolog.Logger
}

func run() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, err := localstore.Open(cfg.DataPath, log)
	if err != nil {
		return err
	}
	defer kv.Close()

	id, err := identity.Ensure(kv, time.Now())
	if err != nil {
		return err
	}
	player := internal.Player{Id: id, Name: cfg.PlayerName, Grade: cfg.Grade}
	if player.Grade == "" {
		player.Grade = internal.DefaultGrade
	}

	out := &console{w: os.Stdout}
	notifier := notify.Multi{out, notify.NewLogger(log)}

	st := connect(ctx, cfg.RelayURL, id, log, notifier)
	if remote, ok := st.(*store.Remote); ok {
		defer remote.Close()
	}

	led := ledger.New(player.Name, st, kv, notifier, log)
	if err := led.Sync(ctx); err != nil {
		log.Warn().Err(err).Msg("using local balance")
	}
	inv := shop.LoadInventory(kv)

	if st.Connected() {
		if err := presence.Announce(ctx, st, player, log); err != nil {
			log.Warn().Err(err).Msg("presence not announced")
		}
	}

	engine := game.New(game.Session{
		Player:    player,
		Store:     st,
		Ledger:    led,
		Stats:     led,
		Inventory: inv,
		Notifier:  notifier,
		Logger:    log,
		Observer:  out.Event,
	})
	defer engine.Close()

	c := &client{
		engine: engine,
		shop:   shop.New(led, inv, notifier),
		ledger: led,
		inv:    inv,
		out:    out,
		log:    log,
	}
	out.printf("MathQuest duel, player %s (%d points). Type help for commands.", player.DisplayName(), led.Balance())

	g, gctx := errgroup.WithContext(ctx)
	lines := scanLines(os.Stdin)
	g.Go(func() error {
		return c.loop(gctx, lines)
	})
	if remote, ok := st.(*store.Remote); ok {
		g.Go(func() error {
			select {
			case <-remote.Done():
				notifier.Notify("Lost connection to the relay.", notify.Warning)
			case <-gctx.Done():
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// connect dials the relay and falls back to the offline store.
func connect(ctx context.Context, url, id string, log zerolog.Logger, notifier notify.Notifier) store.Store {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	remote, err := store.Dial(dialCtx, url, id, log)
	if err != nil {
		log.Debug().Err(err).Str("relay", url).Msg("relay unreachable")
		notifier.Notify("Playing offline. Online features are unavailable.", notify.Info)
		return store.Offline{}
	}
	return remote
}

// scanLines feeds stdin lines to a channel, closed at EOF. The reader
// goroutine is not cancellable; it ends with the process.
func scanLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

func (c *client) loop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			cmd, err := parseCommand(line)
			if errors.Is(err, errEmptyCommand) {
				continue
			}
			if err != nil {
				c.out.printf("%v (type help)", err)
				continue
			}
			if err := c.dispatch(ctx, cmd); err != nil {
				if errors.Is(err, errQuit) {
					return err
				}
				c.out.printf("%v", err)
			}
		}
	}
}

func (c *client) dispatch(ctx context.Context, cmd command) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestLimit)
	defer cancel()
	c.log.Debug().Str("cmd", cmd.name).Str("arg", cmd.arg).Msg("command")

	switch cmd.name {
	case "find":
		return c.engine.FindMatch(reqCtx)
	case "bot":
		c.engine.PlayBot()
	case "private":
		_, err := c.engine.CreatePrivate(reqCtx)
		return err
	case "open":
		_, err := c.engine.CreateOpen(reqCtx)
		return err
	case "join":
		return c.engine.JoinRoom(reqCtx, cmd.arg)
	case "rooms":
		rooms, err := c.engine.ListRooms(reqCtx)
		if err != nil {
			return err
		}
		c.out.rooms(rooms)
	case "lobby-join":
		return c.engine.JoinExistingRoom(reqCtx, cmd.arg)
	case "a":
		if !c.engine.SubmitAnswer(cmd.arg, false) {
			c.out.printf("no question to answer")
		}
	case "use":
		return c.engine.UseItem(cmd.arg)
	case "shop":
		for _, item := range shop.Catalog {
			c.out.printf("  %-14s %3d pts  owned %d  %s", item.ID, item.Cost, c.inv.Count(item.ID), item.Description)
		}
		c.out.printf("balance: %d points", c.ledger.Balance())
	case "buy":
		err := c.shop.Buy(reqCtx, cmd.arg)
		if errors.Is(err, shop.ErrInsufficientPoints) {
			return nil
		}
		return err
	case "rematch":
		c.engine.Rematch()
	case "cancel":
		c.engine.CancelSearch()
	case "status":
		s := c.engine.State()
		stats := c.ledger.Stats()
		c.out.printf("phase %s, round %d, score %d-%d, lives %d-%d",
			s.Phase, s.Round, s.PlayerScore, s.OpponentScore, s.PlayerLives, s.OpponentLives)
		c.out.printf("balance %d, duels %d won %d, best streak %d",
			c.ledger.Balance(), stats.DuelsPlayed, stats.DuelsWon, stats.AllTimeStreak)
	case "help":
		c.out.printf("%s", helpText)
	case "quit":
		return errQuit
	}
	return nil
}
