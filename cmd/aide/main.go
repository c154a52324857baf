// ABOUTME: Entry point for the aide conversation runtime
// ABOUTME: Provides an interactive chat REPL and skill introspection commands

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/aide-runtime/internal/config"
	"github.com/2389/aide-runtime/internal/runtime"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _     _
   __ _(_) __| | ___
  / _' | |/ _' |/ _ \
 | (_| | | (_| |  __/
  \__,_|_|\__,_|\___|
`

// getConfigPath returns the path to the runtime config file.
// Priority: AIDE_CONFIG env var > XDG_CONFIG_HOME/aide/runtime.yaml > ~/.config/aide/runtime.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AIDE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "runtime.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "aide", "runtime.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: aide <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  chat      Start an interactive conversation")
		fmt.Println("  skills    List registered skills")
		fmt.Println("  events    Show recent runtime events")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "chat":
		err = runChat(ctx)
	case "skills":
		err = runSkills(ctx)
	case "events":
		err = runEvents(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file when present and falls back to
// defaults when it isn't.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err != nil {
		return config.Default(), "(defaults)", nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, configPath, nil
}

func runChat(ctx context.Context) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	rt, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("assembling runtime: %w", err)
	}
	defer rt.Close()

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	if cfg.Database.Path != "" {
		fmt.Printf("Database: %s\n", cfg.Database.Path)
	} else {
		fmt.Println("Database: in-memory")
	}
	green.Print("    ▶ ")
	fmt.Printf("Skills:   %d registered\n", len(rt.Registry.ListSkills("", "")))
	fmt.Println()
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	user := os.Getenv("USER")
	if user == "" {
		user = "you"
	}
	sessionID := rt.Dialogue.StartSession(user, "terminal", map[string]any{"device_type": "desktop"})
	defer rt.Dialogue.EndSession(sessionID)

	if err := repl(ctx, rt, sessionID); err != nil {
		return err
	}

	fmt.Println("\nGoodbye!")
	return nil
}

func repl(ctx context.Context, rt *runtime.Runtime, sessionID string) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if input == "/help" {
			printHelp()
			fmt.Println()
			continue
		}

		if input == "/skills" {
			printSkills(rt)
			fmt.Println()
			continue
		}

		if input == "/events" {
			printEvents(rt)
			fmt.Println()
			continue
		}

		if input == "/history" {
			printHistory(ctx, rt, sessionID)
			fmt.Println()
			continue
		}

		turn, err := rt.Dialogue.ProcessTurn(ctx, sessionID, input, nil)
		if err != nil {
			color.Red("[error] %v", err)
			fmt.Println()
			continue
		}

		if !turn.Success && turn.ErrorMessage != "" {
			color.HiBlack("[%s]", turn.ErrorMessage)
		}
		fmt.Println(turn.SystemResponse)
		fmt.Println()
	}
}

// printHelp displays available commands.
func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /skills        List registered skills")
	fmt.Println("  /events        Show recent runtime events")
	fmt.Println("  /history       Show conversation history")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit")
}

func printSkills(rt *runtime.Runtime) {
	schemas := rt.Registry.ListSkills("", "")
	if len(schemas) == 0 {
		fmt.Println("No skills registered")
		return
	}

	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tCATEGORY\tDESCRIPTION")
	for _, s := range schemas {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Version, s.Category, s.Description)
	}
	w.Flush()
}

func printEvents(rt *runtime.Runtime) {
	events := rt.Bus.RecentEvents(20, "")
	if len(events) == 0 {
		fmt.Println("No events yet")
		return
	}

	for _, ev := range events {
		fmt.Printf("%s %s %s\n",
			color.HiBlackString(ev.Timestamp.Format("15:04:05")),
			color.CyanString(ev.Topic),
			color.HiBlackString("source="+ev.Source))
	}
}

func printHistory(ctx context.Context, rt *runtime.Runtime, sessionID string) {
	turns, err := rt.Dialogue.History(ctx, sessionID, 20)
	if err != nil {
		color.Red("[error] %v", err)
		return
	}
	if len(turns) == 0 {
		fmt.Println("No conversation history")
		return
	}

	fmt.Println(strings.Repeat("-", 60))
	for _, t := range turns {
		fmt.Printf("%s %s\n", color.BlueString("→"), t.UserInput)
		fmt.Printf("%s %s\n", color.GreenString("←"), t.SystemResponse)
	}
	fmt.Println(strings.Repeat("-", 60))
}

func runSkills(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	// Introspection only; keep the store untouched.
	cfg.Database.Path = ""

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("assembling runtime: %w", err)
	}
	defer rt.Close()

	printSkills(rt)
	return nil
}

func runEvents(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	// Introspection only; keep the store untouched.
	cfg.Database.Path = ""

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := runtime.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("assembling runtime: %w", err)
	}
	defer rt.Close()

	// Startup itself produces events: one skill.registered per built-in.
	printEvents(rt)
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
