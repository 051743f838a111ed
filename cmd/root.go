package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bnema/meeting-alertd/internal/config"
	"github.com/bnema/meeting-alertd/internal/logger"
	"github.com/bnema/meeting-alertd/internal/token"
)

var (
	stateDir string
	verbose  bool
	cfgFile  string
	cfg      *config.Config

	// Version information
	version    string
	commitHash string
	buildTime  string
)

var rootCmd = &cobra.Command{
	Use:   "meeting-alertd",
	Short: "Calendar meeting alerts with multi-channel desktop notifications",
	Long: `A daemon that polls your calendar, keeps its access token healthy, and
fires deduplicated desktop alerts before meetings start.

meeting-alertd classifies events by proximity to now, groups simultaneous
meetings into one notification, and fans each alert out to independent
channels (banner, sound, tray, screen flash) so one failing channel can
never silence the others.`,
}

func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, commit, buildTimeStr string) {
	version = v
	commitHash = commit
	buildTime = buildTimeStr

	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commitHash, buildTime)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "state directory (default: ~/.cache/meeting-alertd)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/meeting-alertd/config.toml)")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logoutCmd)
}

func initConfig() {
	logger.Init(verbose)

	if stateDir == "" {
		defaultStateDir, err := config.GetDefaultStateDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting default state directory: %v\n", err)
			os.Exit(1)
		}
		stateDir = defaultStateDir
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

// newTokenManager wires the credential store, validator, and optional
// interactive/manual acquisition channels.
func newTokenManager(interactive bool) (*token.Manager, error) {
	store, err := token.NewFileStore(stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	mgr, err := token.NewManager(store, token.NewTokenInfoValidator())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token manager: %w", err)
	}

	if interactive {
		mgr.SetInteractiveProvider(token.NewDeviceFlow())
		mgr.SetManualEntry(token.PromptFunc(promptStdin))
	}

	return mgr, nil
}
