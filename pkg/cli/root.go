// Package cli implements the bff operator command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]any{"error": err.Error()}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				errObj["http_status"] = apiErr.HTTPStatus
				if apiErr.ErrorCode != "" {
					errObj["error_code"] = apiErr.ErrorCode
				}
				if len(apiErr.Result) > 0 {
					errObj["result"] = apiErr.Result
				}
			}
			_ = PrintJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var host, token, output, profile string

	client := NewClient("", "")

	rootCmd := &cobra.Command{
		Use:           "bff",
		Short:         "Dataset ingestion CLI",
		Long:          "Command-line interface for the agent-bff ingestion API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				// The config file is optional.
				cfg = emptyUserConfig()
			}
			p, err := cfg.ActiveProfile(profile)
			if err != nil {
				return err
			}

			// flag > env > profile > default
			resolve := func(dst *string, flag, env, fromProfile string) {
				if cmd.Flags().Changed(flag) {
					return
				}
				if v := os.Getenv(env); v != "" {
					*dst = v
				} else if fromProfile != "" {
					*dst = fromProfile
				}
			}
			resolve(&host, "host", "BFF_HOST", p.Host)
			resolve(&token, "token", "BFF_TOKEN", p.Token)
			resolve(&output, "output", "BFF_OUTPUT", p.Output)
			if output == "" {
				output = defaultOutputFormat(os.Stdout)
			}

			if err := validateOutputFormat(output); err != nil {
				return err
			}
			base, err := normalizeHost(host)
			if err != nil {
				return err
			}
			client.BaseURL = base
			client.Token = token
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:8080", "API host URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token for authentication")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "Output format (table, json); defaults to table on a terminal")
	rootCmd.PersistentFlags().StringVarP(&profile, "profile", "p", "", "Config profile to use")

	rootCmd.AddCommand(
		newIngestCmd(client),
		newUploadCmd(client),
		newReconciliationsCmd(client),
		newTempBucketCmd(client),
		newVersionCmd(),
		newConfigCmd(),
		newAuthCmd(),
	)
	return rootCmd
}
