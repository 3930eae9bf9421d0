package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yegors/co-subtitles/internal/config"
	"github.com/yegors/co-subtitles/internal/language"
	"github.com/yegors/co-subtitles/pkg/logger"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "co-subtitles",
		Short:         "Live bilingual subtitles for WebRTC audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFlag)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Path to configuration file (optional - will search in configs/ and root directory)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the subtitle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configFlag)
		},
	})
	rootCmd.AddCommand(newLanguagesCommand())
	rootCmd.AddCommand(newConfigCheckCommand(&configFlag))
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})

	return rootCmd
}

func newLanguagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the supported languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			all := language.All()
			rows := make([][]string, 0, len(all))
			for _, l := range all {
				spaced := "yes"
				if !l.UsesSpace {
					spaced = "no"
				}
				rows = append(rows, []string{l.Name, l.Code, spaced})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Language", "Code", "Spaces"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newConfigCheckCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			rows := [][]string{
				{"listen", cfg.Server.Addr()},
				{"static files", cfg.Server.StaticFilesDir},
				{"speech provider", cfg.Speech.Provider},
				{"translation provider", cfg.Translation.Provider},
				{"audio language", cfg.Languages.DefaultAudio},
				{"translation language", cfg.Languages.DefaultTranslation},
				{"window size", fmt.Sprint(cfg.Subtitles.WindowSize)},
				{"ice servers", fmt.Sprint(cfg.WebRTC.ICEServers)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Setting", "Value"}, rows, nil))
			return nil
		},
	}
}

// loadConfig loads and validates the configuration. Without a config file
// the built-in defaults and environment are used.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		fmt.Fprintln(os.Stderr, "No configuration file found, using defaults")
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}
