package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pr-poehali-dev/speech-parts-drawing/internal/api"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/avatar"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/canvas"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/catalog"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/config"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/discovery"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/fetcher"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/generator"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/session"
	"github.com/pr-poehali-dev/speech-parts-drawing/internal/store"
)

type app struct {
	cfgPath string
	verbose bool

	cfg *config.Config
	log *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "speechparts",
		Short: "Parts of speech drawing board and avatar gallery",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		a.serveCmd(),
		a.partsCmd(),
		a.showCmd(),
		a.randomCmd(),
		a.drawCmd(),
		a.generateCmd(),
		a.discoverCmd(),
	)
	return rootCmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	log, err := newLogger(cfg.Logging, a.verbose)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func newLogger(lc config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log, nil
}

func (a *app) newGenerator() (*generator.Client, error) {
	return generator.New(generator.Options{
		APIKey:     a.cfg.Generator.APIKey,
		BaseURL:    a.cfg.Generator.BaseURL,
		Model:      a.cfg.Generator.Model,
		Timeout:    a.cfg.GetGeneratorTimeout(),
		MaxRetries: a.cfg.Generator.MaxRetries,
		Backoff:    a.cfg.GetGeneratorBackoff(),
		Logger:     a.log,
	})
}

func (a *app) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}

			s, err := store.New(a.cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer s.Close()

			boards := session.NewManager(session.Options{
				Width:     a.cfg.Canvas.Width,
				Height:    a.cfg.Canvas.Height,
				MaxSide:   a.cfg.Canvas.MaxSide,
				MaxBoards: a.cfg.Canvas.MaxBoards,
				Logger:    a.log,
			})
			defer boards.Close()

			opts := api.Options{
				Addr:            a.cfg.Server.Addr,
				MaxConns:        a.cfg.Server.MaxConns,
				ReadTimeout:     a.cfg.GetReadTimeout(),
				ShutdownTimeout: a.cfg.GetShutdownTimeout(),
				Store:           s,
				Boards:          boards,
				Logger:          a.log,
			}
			if a.cfg.GeneratorEnabled() {
				gen, err := a.newGenerator()
				if err != nil {
					return err
				}
				opts.Generator = gen
			} else {
				a.log.Info("avatar generation disabled, no API key configured")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if a.cfg.Discovery.Enabled {
				port, err := listenPort(a.cfg.Server.Addr)
				if err != nil {
					return err
				}
				adv, err := discovery.Advertise(a.cfg.Discovery.Instance, a.cfg.Discovery.Service, port,
					[]string{"path=/parts"}, a.log)
				if err != nil {
					return err
				}
				defer adv.Shutdown()
			}

			return api.New(opts).Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (overrides config)")
	return cmd
}

func listenPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("address %q has no fixed port", addr)
	}
	return port, nil
}

func (a *app) partsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parts",
		Short: "List parts of speech",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, p := range catalog.All() {
				kind := "служебная"
				if p.Independent {
					kind = "самостоятельная"
				}
				fmt.Fprintf(out, "%-12s %s %-16s %s  %s\n", p.ID, p.Emoji, p.Name, p.Color, kind)
			}
			return nil
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [part]",
		Short: "Show part of speech details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := catalog.Lookup(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:       %s\n", p.ID)
			fmt.Fprintf(out, "Name:     %s %s\n", p.Emoji, p.Name)
			fmt.Fprintf(out, "Color:    %s\n", p.Color)
			fmt.Fprintf(out, "Icon:     %s\n", p.Icon)
			fmt.Fprintf(out, "About:\n%s\n", p.Description)

			if len(p.Examples) > 0 {
				fmt.Fprintf(out, "\nExamples:\n")
				for _, ex := range p.Examples {
					fmt.Fprintf(out, "  - %s\n", ex)
				}
			}
			return nil
		},
	}
}

func (a *app) randomCmd() *cobra.Command {
	var seed uint64

	cmd := &cobra.Command{
		Use:   "random [part]",
		Short: "Suggest a random avatar for a part of speech",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := catalog.Lookup(args[0])
			if err != nil {
				return err
			}

			var rng *rand.Rand
			if cmd.Flags().Changed("seed") {
				rng = rand.New(rand.NewPCG(seed, seed))
			}
			draft, err := avatar.NewRandomizer(rng).Random(p.ID)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", draft.Emoji, draft.Name)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for a reproducible suggestion")
	return cmd
}

func (a *app) drawCmd() *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Replay pointer events from a JSON file and write the PNG",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("read events: %w", err)
			}
			var events []canvas.Event
			if err := json.Unmarshal(data, &events); err != nil {
				return fmt.Errorf("parse events: %w", err)
			}

			sf := canvas.New(a.cfg.Canvas.Width, a.cfg.Canvas.Height)
			defer sf.Close()
			if a.cfg.Canvas.Color != "" {
				if err := sf.SetColor(a.cfg.Canvas.Color); err != nil {
					return err
				}
			}
			if a.cfg.Canvas.LineWidth != 0 {
				if err := sf.SetWidth(a.cfg.Canvas.LineWidth); err != nil {
					return err
				}
			}

			if err := canvas.Replay(sf, events); err != nil {
				return err
			}
			png, err := sf.Export()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, png, 0o644); err != nil {
				return fmt.Errorf("write image: %w", err)
			}

			a.log.Debug("drawing exported", zap.Int("events", len(events)), zap.Int("segments", sf.Segments()))
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%dx%d, %d segments)\n", out, sf.Width(), sf.Height(), sf.Segments())
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "JSON file with pointer events")
	cmd.Flags().StringVarP(&out, "out", "o", "drawing.png", "output PNG file")
	cmd.MarkFlagRequired("in")
	return cmd
}

func (a *app) generateCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "generate [part] [prompt...]",
		Short: "Generate an avatar image for a part of speech",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := catalog.Lookup(args[0])
			if err != nil {
				return err
			}
			prompt, err := generator.ComposePrompt(p, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			gen, err := a.newGenerator()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Generating avatar for %s...\n", p.Name)
			res, err := gen.Generate(cmd.Context(), generator.Request{PartID: p.ID, Prompt: prompt})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.ImageURL)

			if out == "" {
				return nil
			}
			img, err := fetcher.FetchImage(cmd.Context(), res.ImageURL)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, img.Data, 0o644); err != nil {
				return fmt.Errorf("write image: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s (%s)\n", out, img.ContentType)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "download the generated image to this file")
	return cmd
}

func (a *app) discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Find speechparts servers on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			addrs, err := discovery.Browse(a.cfg.Discovery.Service, a.cfg.GetDiscoveryTimeout())
			if err != nil {
				return err
			}
			if len(addrs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No servers found.")
				return nil
			}
			for _, addr := range addrs {
				fmt.Fprintf(cmd.OutOrStdout(), "http://%s\n", addr)
			}
			return nil
		},
	}
}
