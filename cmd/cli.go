package cmd

import (
	"errors"
	"os"

	"github.com/cheerily/cheerily/config"
	"github.com/cheerily/cheerily/db"
	"github.com/cheerily/cheerily/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	// annotationNoDB marks commands that run without opening the database.
	annotationNoDB = "cheerily/no-db"
	// annotationUpstream marks commands that talk to Reddit and need a valid config.
	annotationUpstream = "cheerily/upstream"
)

func Execute() {
	if err := db.ConfigurePath(); err != nil {
		log.Error().Err(err).Msg("Failed to resolve the database path")
		os.Exit(1)
	}

	rootCmd := createRootCmd()
	rootCmd.PersistentFlags().BoolP("help", "h", false, "Show help for a command")

	err := rootCmd.Execute()
	closeDatabase()
	if err != nil {
		log.Error().Err(err).Msg("Command execution failed.")
		rootCmd.PrintErrln("Error:", err.Error())
		os.Exit(clierr.ExitCode(err))
	}
}

func createRootCmd() *cobra.Command {
	a := newApp(config.NewConfig(version))
	a.loadErr = errors.Join(a.cfg.LoadDotEnv(os.Getwd), a.cfg.LoadEnv(os.Getenv))

	rootCmd := &cobra.Command{
		Use:           "cheerily",
		Short:         "A cheerful picture a day, straight from Reddit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.loadErr != nil {
				return clierr.New(clierr.Validation, "Invalid configuration: "+a.loadErr.Error(), a.loadErr)
			}
			if cmd.Annotations[annotationUpstream] == "true" {
				if err := a.cfg.Validate(); err != nil {
					return clierr.New(clierr.Validation, err.Error(), err)
				}
			}
			if cmd.Annotations[annotationNoDB] == "true" {
				return nil
			}
			if err := initializeDatabase(); err != nil {
				return clierr.New(clierr.Internal, "Failed to open the database at "+db.Path, err)
			}
			return nil
		},
	}
	a.cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		authCmd(a),
		nextCmd(a),
		saveCmd(a),
		savesCmd(a),
		historyCmd(a),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	return rootCmd
}

func initializeDatabase() error {
	if db.GetDB() != nil {
		return nil
	}
	if err := db.InitDB(); err != nil {
		log.Error().Err(err).Msg("Failed to initialize database")
		return err
	}
	return nil
}

func closeDatabase() {
	if err := db.CloseDB(); err != nil {
		log.Error().Err(err).Msg("Failed to close the database.")
	}
	db.Db = nil
}

func upstream() map[string]string {
	return map[string]string{annotationUpstream: "true"}
}
