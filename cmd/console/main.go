package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/config"
	"alfredoptarigan/report-console/internal/logging"
	"alfredoptarigan/report-console/internal/services"
	"alfredoptarigan/report-console/internal/state"
)

var red = color.New(color.FgRed).SprintFunc()

// runtime is the per-invocation wiring shared by every command.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	app       *state.App
	orch      services.Orchestrator
	validator services.ArtifactValidator
	out       *services.ConsoleWriter
}

type rootOptions struct {
	verbose     bool
	backendURL  string
	downloadDir string
}

func newRootCommand() (*cobra.Command, *runtime) {
	opts := &rootOptions{}
	rt := &runtime{}

	root := &cobra.Command{
		Use:           "console",
		Short:         "Drive the report backend from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.init(cmd, opts)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt.logger != nil {
				_ = rt.logger.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&opts.backendURL, "backend", "", "report backend base URL (overrides BACKEND_URL)")
	root.PersistentFlags().StringVar(&opts.downloadDir, "download-dir", "", "directory receiving exported files (overrides DOWNLOAD_PATH)")

	root.AddCommand(
		newUploadCommand(rt),
		newParseCommand(rt),
		newVerifyCommand(rt),
		newScoreCommand(rt),
		newDiagnoseCommand(rt),
		newValidateAudioCommand(rt),
		newConfigCommand(rt),
		newSuggestionCommand(rt),
	)
	return root, rt
}

func (rt *runtime) init(cmd *cobra.Command, opts *rootOptions) error {
	rt.cfg = config.Load()
	if opts.backendURL != "" {
		rt.cfg.Backend.URL = opts.backendURL
	}
	if opts.downloadDir != "" {
		rt.cfg.Storage.DownloadPath = opts.downloadDir
	}

	logger, err := logging.New(opts.verbose)
	if err != nil {
		return err
	}
	rt.logger = logger
	rt.out = services.NewConsoleWriter(cmd.OutOrStdout())

	backend := services.NewBackendClient(services.BackendOptions{
		BaseURL:         rt.cfg.Backend.URL,
		Timeout:         rt.cfg.Backend.Timeout,
		MaxResponseSize: rt.cfg.Backend.MaxResponseSize,
	}, logger)
	rt.validator = services.NewArtifactValidator(services.ValidatorOptions{
		ProbeTimeout: rt.cfg.Validation.AudioProbeTimeout,
		MaxSize:      rt.cfg.Validation.AudioMaxSize,
		MaxDuration:  rt.cfg.Validation.AudioMaxDuration,
		FFProbePath:  rt.cfg.Validation.FFProbePath,
	}, logger)

	rt.app = state.New()
	rt.app.Subscribe(func(event state.Event) {
		if event.Kind == state.EventNotification && event.Notification != nil {
			rt.out.Notification(*event.Notification)
		}
	})

	rt.orch = services.NewOrchestrator(
		rt.app,
		backend,
		rt.validator,
		services.NewResultRenderer(),
		services.NewFileDownloader(rt.cfg.Storage.DownloadPath, logger),
		nil,
		logger,
	)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, _ := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, red("❌ "+err.Error()))
		os.Exit(1)
	}
}
