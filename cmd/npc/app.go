package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwebster45206/npc-engine/internal/config"
	"github.com/jwebster45206/npc-engine/internal/engine"
	"github.com/jwebster45206/npc-engine/internal/gateway"
	"github.com/jwebster45206/npc-engine/internal/logger"
	"github.com/jwebster45206/npc-engine/internal/services"
	"github.com/jwebster45206/npc-engine/internal/session"
	"github.com/jwebster45206/npc-engine/internal/telemetry"
	"github.com/jwebster45206/npc-engine/internal/voice"
	"github.com/jwebster45206/npc-engine/pkg/dialogue"
	"github.com/jwebster45206/npc-engine/pkg/npc"
)

// App holds the CLI's IO and the lazily built engine.
type App struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Config is loaded from the environment when nil.
	Config *config.Config

	character  string
	sessionID  string
	catalogDir string
	actions    []string
	objects    []string

	logger  *slog.Logger
	catalog *npc.Catalog
	engine  *engine.Engine
	cleanup func(context.Context) error
}

// RootCmd builds the command tree.
func (app *App) RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "npc",
		Short:         "Talk to in-game characters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if app.cleanup == nil {
				return nil
			}
			return app.cleanup(context.WithoutCancel(cmd.Context()))
		},
	}
	rootCmd.SetIn(app.In)
	rootCmd.SetOut(app.Out)
	rootCmd.SetErr(app.Err)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.character, "character", npc.Kaelen.ID, "character id to talk to")
	flags.StringVar(&app.sessionID, "session", "", "session id (history is kept per session)")
	flags.StringVar(&app.catalogDir, "catalog-dir", "", "directory of character YAML files (overrides CATALOG_DIR)")
	flags.StringSliceVar(&app.actions, "actions", []string{"idle", "speak"}, "actions the character may take this turn")
	flags.StringArrayVar(&app.objects, "object", nil, "nearby object as name=description (repeatable)")

	app.addCommands(rootCmd)
	return rootCmd
}

func (app *App) addCommands(rootCmd *cobra.Command) {
	chatCmd := &cobra.Command{
		Use:   "chat <player input>",
		Short: "Run a single structured exchange",
		Long: `Send one line of player input to the character and print the
validated dialogue action as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runChat(cmd.Context(), strings.Join(args, " "))
		},
	}

	var maxExchanges int
	converseCmd := &cobra.Command{
		Use:   "converse",
		Short: "Hold a multi-turn conversation over stdin/stdout",
		Long: `Read player lines from stdin and print the character's replies until
the exchange limit, a farewell from the character, or end of input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runConverse(cmd.Context(), maxExchanges)
		},
	}
	converseCmd.Flags().IntVar(&maxExchanges, "max-exchanges", 0, "stop after this many exchanges (0 = unlimited)")

	charactersCmd := &cobra.Command{
		Use:   "characters",
		Short: "List available characters",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			for _, id := range app.catalog.IDs() {
				p, err := app.catalog.Get(id)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "%s\t%s\t%s\n", p.ID, p.Name, p.TraitList())
			}
			return nil
		},
	}

	rootCmd.AddCommand(chatCmd, converseCmd, charactersCmd)
}

func (app *App) setup(ctx context.Context) error {
	cfg := app.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
	}
	// Logs go to stderr so stdout stays clean for replies.
	app.logger = slog.New(logger.NewHandler(app.Err, cfg.Environment, cfg.LogLevel))

	dir := app.catalogDir
	if dir == "" {
		dir = cfg.CatalogDir
	}
	app.catalog = npc.DefaultCatalog()
	if dir != "" {
		c, err := npc.LoadCatalog(dir)
		if err != nil {
			return err
		}
		app.catalog = c
	}

	shutdown, err := telemetry.Setup(ctx, "npc-engine-cli", cfg)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	app.cleanup = shutdown

	llm, err := services.NewLLMService(cfg, app.logger)
	if err != nil {
		return err
	}
	if err := llm.InitModel(ctx, cfg.Model()); err != nil {
		return fmt.Errorf("failed to initialize model %s: %w", cfg.Model(), err)
	}

	app.engine = engine.New(app.catalog, session.NewMemoryStore(), gateway.New(llm, app.logger),
		engine.WithLogger(app.logger),
		engine.WithTimeout(cfg.ModelTimeout),
		engine.WithRetry(cfg.ModelRetries))
	app.Config = cfg
	return nil
}

func (app *App) environment() *dialogue.EnvironmentSnapshot {
	env := &dialogue.EnvironmentSnapshot{AvailableActions: app.actions}
	for _, o := range app.objects {
		name, desc, _ := strings.Cut(o, "=")
		env.NearbyObjects = append(env.NearbyObjects, dialogue.NearbyObject{
			Name:        strings.TrimSpace(name),
			Description: strings.TrimSpace(desc),
		})
	}
	return env
}

func (app *App) runChat(ctx context.Context, input string) error {
	action, err := app.engine.Interact(ctx, engine.InteractRequest{
		NPCID:       app.character,
		SessionID:   app.sessionID,
		PlayerInput: input,
		Environment: app.environment(),
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(app.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(action)
}

func (app *App) runConverse(ctx context.Context, maxExchanges int) error {
	profile, err := app.catalog.Get(app.character)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := voice.NewConsoleSynthesizer(app.Out, profile.Name)
	out.SetRate(app.Config.VoiceRate)
	if err := out.SetVolume(app.Config.VoiceVolume); err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Talking to %s. Say 'exit', 'quit', or 'bye' to end the conversation.\n", profile.Name)
	app.logger.Debug("Conversation starting",
		"speech_language", app.Config.SpeechLanguage,
		"voice_rate", out.Rate(),
		"voice_volume", out.Volume())

	res, err := app.engine.RunSession(ctx, engine.SessionRequest{
		NPCID:        app.character,
		SessionID:    app.sessionID,
		MaxExchanges: maxExchanges,
		Environment:  app.environment(),
	}, voice.NewLineTranscriber(app.In), out)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Conversation ended (%s) after %d exchanges.\n", res.StopReason, res.Exchanges)
	return nil
}
