package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Nyvram23/Utility-Box/internal/backup"
	"github.com/Nyvram23/Utility-Box/internal/connectivity"
	"github.com/Nyvram23/Utility-Box/internal/sync/scheduler"
	"github.com/Nyvram23/Utility-Box/internal/tools"
)

func newExportCmd(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "export [path]",
		Short: "Write a backup of all tool data",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := backup.DefaultFileName(time.Now())
			if len(args) == 1 {
				path = args[0]
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			svc := backup.NewService(tools.NewRegistry(st), nil)
			var result *backup.ExportResult
			if password != "" {
				result, err = exportSealed(svc, path, password)
			} else {
				result, err = svc.ExportFile(path)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d domains to %s (%d bytes)\n",
				result.DomainCount, result.FilePath, result.SizeBytes)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "encrypt the backup with this password")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Restore tool data from a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open backup: %w", err)
			}
			defer f.Close()

			br := bufio.NewReader(f)
			head, _ := br.Peek(len("UBXSEAL"))
			sealed := backup.IsSealed(head)
			if sealed && password == "" {
				return fmt.Errorf("%s is password protected, use --password", args[0])
			}

			svc := backup.NewService(tools.NewRegistry(st), nil)
			var result *backup.ImportResult
			if sealed {
				result, err = svc.ImportSealed(br, password)
			} else {
				result, err = svc.Import(br)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d domains (%d skipped), exported at %s\n",
				result.ImportedCount, result.SkippedCount, result.ExportedAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password of an encrypted backup")
	return cmd
}

func exportSealed(svc *backup.Service, path, password string) (*backup.ExportResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}

	result, err := svc.ExportSealed(f, password)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close backup file: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}
	result.FilePath = path
	return result, nil
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted session and pending sync entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			// offline so that loading does not start delivering
			o := scheduler.New(scheduler.Deps{
				Store:   st,
				Monitor: connectivity.NewMonitor(false),
				Tools:   tools.NewRegistry(st),
			}, scheduler.ConfigFrom(a.cfg))
			defer o.Stop()

			stats := o.Stats()
			out := struct {
				UserID   string     `json:"userId,omitempty"`
				LastSync *time.Time `json:"lastSync"`
				Pending  int        `json:"pendingCount"`
				Queue    any        `json:"queue"`
			}{stats.UserID, stats.LastSync, stats.PendingCount, o.Pending()}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
