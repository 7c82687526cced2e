package cmd

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"phototrail/config"
)

var rootCmd = &cobra.Command{
	Use:   "phototrail",
	Short: "Incremental photo ingestion, enrichment and viewing",
	Long: `phototrail walks a directory tree of photographs, enriches each new photo
with coordinates, a place name, a map snapshot and a generated caption with
points of interest, and persists the result for the web viewer.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(ingestCommand())
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(initDBCommand())
}

// loadConfig reads .env (when present) and the environment into an explicit
// configuration object.
func loadConfig() (config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	return config.LoadConfig()
}
