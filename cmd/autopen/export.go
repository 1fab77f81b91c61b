package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pattonant/autopen2.0/internal/database"
	"github.com/pattonant/autopen2.0/internal/types"
)

var flagExportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a stored session snapshot",
	Long: `Export retrieves the latest stored snapshot of a session from the
configured database and writes it as JSON to stdout or --output.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	exportCmd.Flags().StringVarP(&flagExportOutput, "output", "o", "", "Write snapshot JSON to this file instead of stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	sessionID, err := types.ParseID(args[0])
	if err != nil {
		return err
	}

	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	snap, err := db.LoadSnapshot(cmd.Context(), sessionID)
	if err != nil {
		return err
	}

	data, err := snap.MarshalIndent()
	if err != nil {
		return err
	}

	if flagExportOutput != "" {
		return os.WriteFile(flagExportOutput, data, 0o600)
	}
	cmd.Println(string(data))
	return nil
}

func runSessions(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	infos, err := db.ListSnapshots(cmd.Context())
	if err != nil {
		return err
	}

	printSessions(cmd, infos)
	return nil
}

func openDatabase() (*database.DB, error) {
	if cfg.Database.Path == "" {
		return nil, fmt.Errorf("no database configured; set database.path in the config file")
	}
	return database.Open(cfg.Database.Path)
}
