package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/amirasaad/btcfx/infra/initializer"
	"github.com/amirasaad/btcfx/pkg/app"
	"github.com/amirasaad/btcfx/pkg/config"
	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/amirasaad/btcfx/pkg/eventbus"
	"github.com/amirasaad/btcfx/pkg/resilience"
	log "github.com/charmbracelet/log"
	"github.com/shopspring/decimal"
)

const usage = `Usage: btcfx <command> [arguments]
Commands:
  compare <source> <target> [amount]      compare one conversion
  batch <SRC/TGT> [SRC/TGT ...]           compare one unit of each pair
  watch <source> <target> [amount] [every] refresh until interrupted
  health                                  show feed state`

var errUsage = errors.New(usage)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, ".env"); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Println(usage)
			os.Exit(2)
		}
		fmt.Println(resilience.UserMessage(err))
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, out io.Writer, envFile string) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}
	deps, err := initializer.InitializeDependencies(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	a := app.New(deps, cfg)
	defer func() { _ = a.Close() }()

	switch args[0] {
	case "compare":
		if len(args) < 3 {
			return errUsage
		}
		amount, err := parseAmount(args[3:])
		if err != nil {
			return err
		}
		c, err := a.Compare(ctx, args[1], args[2], amount)
		if err != nil {
			return err
		}
		printComparison(out, *c)

	case "batch":
		if len(args) < 2 {
			return errUsage
		}
		pairs := make([]domain.Pair, 0, len(args)-1)
		for _, arg := range args[1:] {
			src, tgt, ok := strings.Cut(arg, "/")
			if !ok {
				return fmt.Errorf("invalid pair %q, want SRC/TGT", arg)
			}
			pairs = append(pairs, domain.Pair{Source: src, Target: tgt})
		}
		results, err := a.Batch(ctx, pairs)
		if err != nil {
			return err
		}
		for _, c := range results {
			printComparison(out, c)
		}

	case "watch":
		if len(args) < 3 {
			return errUsage
		}
		amount, err := parseAmount(args[3:])
		if err != nil {
			return err
		}
		every := cfg.Forex.CacheTTL
		if len(args) > 4 {
			if every, err = time.ParseDuration(args[4]); err != nil || every <= 0 {
				return fmt.Errorf("invalid interval %q", args[4])
			}
		}
		return watch(ctx, a, out, args[1], args[2], amount, every)

	case "health":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(a.Health())

	default:
		return errUsage
	}
	return nil
}

func watch(ctx context.Context, a *app.App, out io.Writer, source, target string, amount float64, every time.Duration) error {
	a.Deps.EventBus.Register(app.EventComparisonComputed, func(_ context.Context, e eventbus.Event) error {
		printComparison(out, e.(app.ComparisonComputed).Comparison)
		return nil
	})
	a.Deps.EventBus.Register(app.EventFeedFailed, func(_ context.Context, e eventbus.Event) error {
		ev := e.(app.FeedFailed)
		fmt.Fprintf(out, "%s: %s\n", ev.Feed, ev.UserMessage)
		return nil
	})

	s := a.NewSession(ctx, source, target, amount)
	defer s.Close()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		// Partial failures are reported through feed.failed.
		_ = s.Refresh(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func parseAmount(args []string) (float64, error) {
	if len(args) == 0 {
		return 1, nil
	}
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount: %w", err)
	}
	return amount, nil
}

func round(v float64, places int32) string {
	return decimal.NewFromFloat(v).Round(places).String()
}

func printComparison(out io.Writer, c domain.Comparison) {
	fmt.Fprintf(out, "%s -> %s (amount %s)\n", c.Source, c.Target, round(c.Amount, 2))
	fmt.Fprintf(out, "  traditional: rate %s, receive %s\n", round(c.TraditionalRate, 6), round(c.TraditionalAmount, 2))
	fmt.Fprintf(out, "  bitcoin:     rate %s, receive %s\n", round(c.BitcoinRate, 6), round(c.BitcoinAmount, 2))
	fmt.Fprintf(out, "  difference:  %s%%, better: %s", round(c.PercentageDifference, 2), c.BetterMethod)
	if c.ArbitrageOpportunity {
		fmt.Fprint(out, ", arbitrage opportunity")
	}
	fmt.Fprintln(out)
}
