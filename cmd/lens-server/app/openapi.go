package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/lens/pkg/config"
)

func newOpenAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openapi",
		Short: "Print the API document for the configured strategy",
		Long: `Print the OpenAPI document, including the security schemes of the
configured strategy, without starting the server. Settings are always read
from the config file, never from a live settings source.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")

			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				out = f
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			return writeOpenAPI(cmd.Context(), cfg, logger, format, out)
		},
	}

	cmd.Flags().StringP("format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")

	return cmd
}

func writeOpenAPI(ctx context.Context, cfg *config.Config, logger *slog.Logger, format string, w io.Writer) error {
	st, err := buildStack(ctx, cfg, logger, cfg.AuthSettings(), nil)
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case "json":
		data, err = st.docs.JSON()
	case "yaml":
		data, err = st.docs.YAML()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
	if err != nil {
		return fmt.Errorf("rendering API document: %w", err)
	}

	_, err = w.Write(data)
	return err
}
