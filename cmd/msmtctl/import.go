package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/msmtupload/internal/config"
	"github.com/JonMunkholm/msmtupload/internal/core"
	"github.com/JonMunkholm/msmtupload/internal/odata"
)

type importOptions struct {
	lookup bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Parse a spreadsheet and print the canonical rows as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.lookup, "lookup", false, "Enrich rows from the measuring point service (needs REMOTE_BASE_URL)")
	return cmd
}

func runImport(ctx context.Context, out io.Writer, path string, opts importOptions) error {
	var svcOpts core.Options
	if opts.lookup {
		cfg, err := config.Load()
		if err != nil {
			return withCode(exitUsage, err)
		}
		svcOpts.Lookup = remoteClient(ctx, cfg)
	}

	batch, _, err := importFile(ctx, path, svcOpts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(batch.Rows)
}

// importFile reads path into a batch on a throwaway service. Without a
// submitter in opts the service only parses.
func importFile(ctx context.Context, path string, opts core.Options) (*core.Batch, *core.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, withCode(exitUsage, fmt.Errorf("read %s: %w", path, err))
	}

	if opts.Submitter == nil {
		opts.Submitter = core.SubmitterFunc(func(context.Context, core.Payload) (core.SubmitResult, error) {
			return core.SubmitResult{}, fmt.Errorf("submitting is disabled")
		})
	}
	opts.Logger = loggerFrom(ctx)
	// Local files are not subject to the upload limit.
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = int64(len(data)) + 1
	}

	svc, err := core.NewService(opts)
	if err != nil {
		return nil, nil, err
	}

	batch, err := svc.ImportFile(ctx, filepath.Base(path), data)
	if err != nil {
		return nil, nil, err
	}
	loggerFrom(ctx).Info("file imported", "file", path, "rows", len(batch.Rows))
	return batch, svc, nil
}

func remoteClient(ctx context.Context, cfg *config.Config) *odata.Client {
	return odata.New(cfg.Remote.BaseURL,
		odata.WithBearerToken(cfg.Remote.BearerToken),
		odata.WithTimeout(cfg.Remote.Timeout),
		odata.WithPaths(cfg.Remote.CreatePath, cfg.Remote.LookupPath),
		odata.WithLogger(loggerFrom(ctx)),
	)
}
