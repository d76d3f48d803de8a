// strata-inspect is an interactive console for poking at a local strata
// engine: reads, writes, tier migration, stats and health.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/strata/internal/logging"
	"github.com/xtxerr/strata/internal/storage"
	"github.com/xtxerr/strata/internal/storage/config"
	"github.com/xtxerr/strata/internal/storage/engine"
	"github.com/xtxerr/strata/internal/storage/types"
)

var commands = []prompt.Suggest{
	{Text: "get", Description: "get <key>"},
	{Text: "set", Description: "set <key> <json-value>"},
	{Text: "del", Description: "del <key>"},
	{Text: "exists", Description: "exists <key>"},
	{Text: "keys", Description: "list locally visible keys"},
	{Text: "promote", Description: "promote <key> <from-tier>"},
	{Text: "demote", Description: "demote <key> <from-tier>"},
	{Text: "pending", Description: "queued operation count"},
	{Text: "stats", Description: "engine statistics"},
	{Text: "health", Description: "health report"},
	{Text: "flush", Description: "drain the operation queue now"},
	{Text: "quit", Description: "exit"},
}

type console struct {
	eng *engine.Engine
}

func (c *console) execute(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch fields[0] {
	case "get":
		if len(fields) != 2 {
			fmt.Println("usage: get <key>")
			return
		}
		printResult(c.eng.Get(ctx, fields[1], types.Options{}))

	case "set":
		if len(fields) < 3 {
			fmt.Println("usage: set <key> <json-value>")
			return
		}
		raw := strings.Join(fields[2:], " ")
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw // treat unparsable input as a plain string
		}
		done, err := c.eng.Set(ctx, fields[1], value, types.Options{Priority: types.PriorityHigh})
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		printResult(<-done)

	case "del":
		if len(fields) != 2 {
			fmt.Println("usage: del <key>")
			return
		}
		done, err := c.eng.Delete(ctx, fields[1], types.Options{Priority: types.PriorityHigh})
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		printResult(<-done)

	case "exists":
		if len(fields) != 2 {
			fmt.Println("usage: exists <key>")
			return
		}
		found, err := c.eng.Exists(ctx, fields[1], types.Options{})
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println(found)

	case "keys":
		for _, key := range c.eng.GetKeys() {
			fmt.Println(key)
		}

	case "promote", "demote":
		if len(fields) != 3 {
			fmt.Printf("usage: %s <key> <from-tier>\n", fields[0])
			return
		}
		tier, err := types.ParseTier(fields[2])
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if fields[0] == "promote" {
			printResult(c.eng.Promote(ctx, fields[1], tier))
		} else {
			printResult(c.eng.Demote(ctx, fields[1], tier))
		}

	case "pending":
		fmt.Println(c.eng.GetPendingCount())

	case "stats":
		s := c.eng.Stats()
		fmt.Printf("enqueued=%d committed=%d retried=%d exhausted=%d rejected=%d optimistic=%d pending=%d\n",
			s.Enqueued, s.Committed, s.Retried, s.Exhausted, s.Rejected, s.OptimisticHits, s.Pending)

	case "health":
		h := c.eng.HealthCheck()
		fmt.Printf("status=%s queue=%d/%d usage=%.2f optimistic=%d\n",
			h.Status, h.QueueSize, h.QueueCapacity, h.QueueUsage, h.OptimisticKeys)

	case "flush":
		c.eng.Flush(ctx)
		fmt.Println("flushed")

	case "quit", "exit":
		// Handled by the exit checker.

	default:
		fmt.Println("unknown command:", fields[0])
	}
}

func printResult(res types.Result) {
	if !res.OK {
		fmt.Println("error:", res.Err)
		return
	}
	if res.Data != nil {
		out, err := json.Marshal(res.Data)
		if err != nil {
			fmt.Println(res.Data)
		} else {
			fmt.Println(string(out))
		}
	}
	fmt.Printf("  tier=%s cached=%v optimistic=%v compressed=%v took=%s\n",
		res.Meta.Tier, res.Meta.Cached, res.Meta.Optimistic, res.Meta.Compressed, res.Meta.RetrievalTime)
}

func completer(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
}

func main() {
	cfgPath := flag.String("config", "strata.yaml", "config file path")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	flag.Parse()

	logging.Init(slog.LevelWarn, false)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	eng, err := storage.Open(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open storage:", err)
		os.Exit(1)
	}
	if err := eng.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "start engine:", err)
		os.Exit(1)
	}

	// go-prompt leaves the terminal raw if the process exits abruptly;
	// restore the saved state on the way out.
	fd := int(os.Stdin.Fd())
	var saved *term.State
	if term.IsTerminal(fd) {
		saved, _ = term.GetState(fd)
	}
	defer func() {
		if saved != nil {
			term.Restore(fd, saved)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		eng.Flush(ctx)
		cancel()
		eng.Close()
	}()

	c := &console{eng: eng}
	p := prompt.New(
		c.execute,
		completer,
		prompt.OptionTitle("strata-inspect"),
		prompt.OptionPrefix("strata> "),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			trimmed := strings.TrimSpace(in)
			return breakline && (trimmed == "quit" || trimmed == "exit")
		}),
	)
	p.Run()
}
