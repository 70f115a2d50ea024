// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/advisor"
	"github.com/poiesic/advisor/config"
	"github.com/poiesic/advisor/core"
	"github.com/poiesic/advisor/orchestrator"
	"github.com/poiesic/advisor/search"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  "price-min",
			Usage: "Lowest acceptable price",
		},
		&cli.Float64Flag{
			Name:  "price-max",
			Usage: "Highest acceptable price",
		},
		&cli.StringFlag{
			Name:  "vendor",
			Usage: "Vendor substring filter",
		},
		&cli.StringFlag{
			Name:  "gpu",
			Usage: "GPU substring filter",
		},
		&cli.StringFlag{
			Name:  "family",
			Usage: "Product family substring filter",
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "advisor",
		Usage: "Conversational product advisor backed by hybrid catalogue retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file (default: " + config.DefaultFile + " if present)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "index",
				Usage:  "Load or build the catalogue embedding index",
				Action: indexCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rebuild",
						Usage: "Discard the persisted index and embed every item again",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Rank catalogue items for a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(filterFlags(),
					&cli.IntFlag{
						Name:    "top-k",
						Aliases: []string{"k"},
						Usage:   "Number of results (default from configuration)",
					},
				),
			},
			{
				Name:      "ask",
				Usage:     "Ask a single question and print the recommendation",
				ArgsUsage: "<message>",
				Action:    askCommand,
				Flags: append(filterFlags(),
					&cli.StringFlag{
						Name:    "session",
						Aliases: []string{"s"},
						Usage:   "Conversation session id (default: new session)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the full response as JSON",
					},
				),
			},
			{
				Name:   "chat",
				Usage:  "Interactive streaming conversation",
				Action: chatCommand,
				Flags: append(filterFlags(),
					&cli.StringFlag{
						Name:    "session",
						Aliases: []string{"s"},
						Usage:   "Conversation session id (default: new session)",
					},
				),
			},
		},
	}
}

func openAdvisor(c *cli.Context) (*advisor.Advisor, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return advisor.New(cfg, advisor.WithProgress(c.App.ErrWriter))
}

// openReady opens the advisor and makes sure its index is usable.
func openReady(ctx context.Context, c *cli.Context) (*advisor.Advisor, error) {
	a, err := openAdvisor(c)
	if err != nil {
		return nil, err
	}
	if _, err := a.EnsureIndex(ctx, false); err != nil {
		a.Close()
		return nil, fmt.Errorf("preparing index: %w", err)
	}
	return a, nil
}

// preferences turns the filter flags that were set into a preference map.
func preferences(c *cli.Context) map[string]any {
	prefs := map[string]any{}
	if c.IsSet("price-min") {
		prefs[search.PrefPriceMin] = c.Float64("price-min")
	}
	if c.IsSet("price-max") {
		prefs[search.PrefPriceMax] = c.Float64("price-max")
	}
	for _, name := range []string{search.PrefVendor, search.PrefGPU, search.PrefFamily} {
		if v := c.String(name); v != "" {
			prefs[name] = v
		}
	}
	return prefs
}

func sessionID(c *cli.Context) string {
	if id := c.String("session"); id != "" {
		return id
	}
	return uuid.NewString()
}

func indexCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := openAdvisor(c)
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := a.EnsureIndex(ctx, c.Bool("rebuild"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Index ready: %d items, dimension %d, embedder %s, built %s\n",
		idx.Len(), idx.Dimension, idx.Identity, idx.BuiltAt.Format("2006-01-02 15:04:05"))
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("%w: query is required", core.ErrInput)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := openReady(ctx, c)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Orchestrator().Search(ctx, query, preferences(c), c.Int("top-k"))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Found %d hits in %s\n", len(result.Items), result.Latency)
	for i, hit := range result.Items {
		fmt.Fprintf(c.App.Writer, "%d: %s '%s' $%.2f [%0.3f]", i, hit.ID, hit.Name, hit.Price, hit.Score)
		if len(hit.MatchedKeywords) > 0 {
			fmt.Fprintf(c.App.Writer, " keywords=%s", strings.Join(hit.MatchedKeywords, ","))
		}
		fmt.Fprintln(c.App.Writer)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	message := strings.Join(c.Args().Slice(), " ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := openReady(ctx, c)
	if err != nil {
		return err
	}
	defer a.Close()

	resp, err := a.Orchestrator().Respond(ctx, orchestrator.Turn{
		SessionID:   sessionID(c),
		Message:     message,
		Preferences: preferences(c),
	})
	if err != nil {
		return err
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResponse(c.App.Writer, resp)
	return nil
}

func chatCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := openReady(ctx, c)
	if err != nil {
		return err
	}
	defer a.Close()

	session := sessionID(c)
	prefs := preferences(c)
	slog.Debug("chat session started", "session", session)

	out := c.App.Writer
	scanner := bufio.NewScanner(c.App.Reader)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "exit", "quit":
			return nil
		}

		if err := streamTurn(ctx, out, a.Orchestrator(), orchestrator.Turn{
			SessionID:   session,
			Message:     line,
			Preferences: prefs,
		}); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

// streamTurn prints fragments as they arrive, then the recommended products.
func streamTurn(ctx context.Context, out io.Writer, o *orchestrator.Orchestrator, turn orchestrator.Turn) error {
	events, err := o.Stream(ctx, turn)
	if err != nil {
		// Invalid input is reported to the user, not treated as fatal.
		fmt.Fprintf(out, "error: %v\n", err)
		return nil
	}

	for ev := range events {
		switch ev.Type {
		case orchestrator.EventMetadata:
			slog.Debug("retrieval finished", "latency", ev.Metadata.RetrievalLatency, "filters", ev.Metadata.AppliedFilters)
		case orchestrator.EventChunk:
			fmt.Fprint(out, ev.Chunk)
		case orchestrator.EventComplete:
			fmt.Fprintln(out)
			printProducts(out, ev.Response.Products)
		case orchestrator.EventError:
			fmt.Fprintf(out, "\n%s\n", ev.Message)
		}
	}
	return nil
}

func printResponse(out io.Writer, resp *orchestrator.Response) {
	fmt.Fprintln(out, resp.Reply)
	if resp.Reasoning != nil {
		fmt.Fprintf(out, "\nReasoning: %s\n", *resp.Reasoning)
	}
	printProducts(out, resp.Products)
}

func printProducts(out io.Writer, products []core.RetrievedItem) {
	if len(products) == 0 {
		return
	}
	fmt.Fprintln(out, "\nRecommended:")
	for _, p := range products {
		fmt.Fprintf(out, "- %s %s ($%.2f)", p.ID, p.Name, p.Price)
		if p.Explanation != "" {
			fmt.Fprintf(out, ": %s", p.Explanation)
		}
		fmt.Fprintln(out)
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
