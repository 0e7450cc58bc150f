package main

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MarcoPoloResearchLab/gallery/internal/config"
)

var (
	cfgFile string
)

func main() {
	app := &application{}
	rootCmd := newRootCommand(app)
	err := rootCmd.Execute()
	app.close()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand(app *application) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "gallery",
		Short:        "Photo gallery processing engine",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(); err != nil {
				return err
			}
			return app.init()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newMetaCommand(app),
		newImportCommand(app),
		newListCommand(app),
		newSearchCommand(app),
		newSortCommand(app),
		newViewCommand(app),
		newTagCommand(app),
		newUpdateCommand(app),
		newDeleteCommand(app),
		newExportCommand(app),
		newEditCommand(app),
		newBatchCommand(app),
		newHistoryCommand(app),
		newServeCommand(app),
	)
	return rootCmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("store-root", defaults.GetString("store.root"), "Directory holding the photo files")
	cmd.PersistentFlags().String("backend", defaults.GetString("backend.executable"), "Catalog backend executable")
	cmd.PersistentFlags().Duration("backend-timeout", defaults.GetDuration("backend.timeout"), "Per-call catalog backend timeout")
	cmd.PersistentFlags().String("journal-path", defaults.GetString("journal.path"), "SQLite batch journal path (empty disables)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "store.root", "store-root")
	bindFlag(cmd, "backend.executable", "backend")
	bindFlag(cmd, "backend.timeout", "backend-timeout")
	bindFlag(cmd, "journal.path", "journal-path")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}
