package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"capstan/pkg/logger"
)

var (
	// Build information, set at link time.
	BuildVersion = "dev"
	BuildCommit  = "none"
	BuildDate    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "capstan",
	Short: "Capstan - artifact publishing for heterogeneous remote stores",
	Long: `Capstan publishes build artifacts - container images, signatures and
generic files - to container registries, S3 buckets and HTTP artifact
repositories, with bounded retry and a duplicate-publish guard.`,
	SilenceUsage: true,
}

// Execute runs the CLI with the given build information.
func Execute(version, commit, date string) error {
	if version != "" {
		BuildVersion = version
	}
	if commit != "" {
		BuildCommit = commit
	}
	if date != "" {
		BuildDate = date
	}
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		// Credentials are commonly kept in a .env next to the config;
		// missing file is fine.
		_ = godotenv.Load()
		logger.GetLogger().ConfigureFromEnv()
	})
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "capstan.yaml", "config file")
}
