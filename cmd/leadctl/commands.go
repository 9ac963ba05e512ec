package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lead-console/config"
	"lead-console/internal/app"
	"lead-console/internal/parser"
	"lead-console/internal/utils"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "leadctl",
		Short: "Administer lead datasets outside the chat",
		Long: `leadctl works on the same record store as the console server.

It needs a persistent database driver (mysql or sqlite) to be useful: with
the memory driver every command starts from an empty store.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("LEADCONSOLE_CONFIG"), "path to the YAML config file")

	root.AddCommand(
		newDatasetsCmd(),
		newCreateCmd(),
		newDeleteCmd(),
		newImportCmd(),
		newExportCmd(),
		newCallersCmd(),
	)
	return root
}

// withApp loads the configuration, opens the stores and runs fn.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// The CLI never needs the chat transport.
	cfg.WhatsApp.Enabled = false

	logger, err := utils.InitLogger("warn", "console", "leadctl")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("error closing stores", zap.Error(err))
		}
	}()
	return fn(a)
}

func newDatasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List datasets with their aggregates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App) error {
				names, err := a.Datasets.List()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tRECORDS\tPHONES\tBYTES\tREGIONS")
				for _, name := range names {
					ds, err := a.Datasets.Open(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", ds.Name, ds.RecordCount, ds.PhoneCount, ds.ImportedByteSize, formatRegions(ds.RegionCounts))
				}
				return w.Flush()
			})
		},
	}
}

func formatRegions(counts map[string]int) string {
	if len(counts) == 0 {
		return "-"
	}
	regions := make([]string, 0, len(counts))
	for region := range counts {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	parts := make([]string, len(regions))
	for i, region := range regions {
		parts[i] = fmt.Sprintf("%s=%d", region, counts[region])
	}
	return strings.Join(parts, ",")
}

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <dataset>",
		Short: "Create an empty dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				ds, err := a.Datasets.Create(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", ds.Name)
				return nil
			})
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <dataset>",
		Short: "Delete a dataset with its dispositions and appointments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				if err := a.Datasets.Delete(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <dataset> <file>",
		Short: "Import a .txt, .csv, .json or .jsonl file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			res, err := parser.ParseFile(filepath.Base(args[1]), data)
			if err != nil {
				return err
			}
			return withApp(cmd, func(a *app.App) error {
				added, err := a.Datasets.Import(args[0], res.Records, int64(len(data)))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d record(s) into %s, %d block(s) rejected\n", added, args[0], len(res.Rejected))
				return nil
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	var format, out string
	var upload bool
	cmd := &cobra.Command{
		Use:   "export <dataset>",
		Short: "Export a dataset as csv or xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				doc, err := a.Exports.Render(args[0], format)
				if err != nil {
					return err
				}
				if upload {
					url, err := a.Exports.Upload(doc)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), url)
					return nil
				}
				path := out
				if path == "" {
					path = doc.FileName
				}
				if err := os.WriteFile(path, doc.Data, 0644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file, defaults to the generated name")
	cmd.Flags().BoolVar(&upload, "upload", false, "upload to S3 instead of writing a file")
	return cmd
}

func newCallersCmd() *cobra.Command {
	callers := &cobra.Command{
		Use:   "callers",
		Short: "List callers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *app.App) error {
				list, err := a.Callers.List(false)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tACTIVE")
				for _, c := range list {
					fmt.Fprintf(w, "%s\t%s\t%t\n", c.ID, c.Name, c.Active)
				}
				return w.Flush()
			})
		},
	}
	callers.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Register a caller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				c, err := a.Callers.Add(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", c.ID)
				return nil
			})
		},
	})
	callers.AddCommand(&cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a caller and release their ongoing records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app.App) error {
				return a.Callers.Deactivate(args[0])
			})
		},
	})
	return callers
}
