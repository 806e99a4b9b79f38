package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage CLI configuration profiles",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigSetProfileCmd(), newConfigUseProfileCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				return fmt.Errorf("no configuration at %s: %w", ConfigPath(), err)
			}
			if !reveal {
				cfg = maskConfig(cfg)
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, _ = os.Stdout.Write(data)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Show tokens unmasked")
	return cmd
}

func maskConfig(cfg *UserConfig) *UserConfig {
	masked := &UserConfig{
		CurrentProfile: cfg.CurrentProfile,
		Profiles:       make(map[string]Profile, len(cfg.Profiles)),
	}
	for name, p := range cfg.Profiles {
		p.Token = maskSecret(p.Token)
		masked.Profiles[name] = p
	}
	return masked
}

// maskSecret keeps the first and last 4 characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 10:
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func newConfigSetProfileCmd() *cobra.Command {
	var name, host, token, output string

	cmd := &cobra.Command{
		Use:   "set-profile",
		Short: "Create or update a configuration profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("profile-host") {
				normalized, err := normalizeHost(host)
				if err != nil {
					return err
				}
				host = normalized
			}
			if cmd.Flags().Changed("default-output") {
				if err := validateOutputFormat(output); err != nil {
					return err
				}
			}
			cfg, err := LoadUserConfig()
			if err != nil {
				cfg = emptyUserConfig()
			}
			p := cfg.Profiles[name]
			if cmd.Flags().Changed("profile-host") {
				p.Host = host
			}
			if cmd.Flags().Changed("profile-token") {
				p.Token = token
			}
			if cmd.Flags().Changed("default-output") {
				p.Output = output
			}
			cfg.Profiles[name] = p
			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, map[string]string{"status": "ok", "profile": name, "path": ConfigPath()})
			}
			_, _ = fmt.Fprintf(os.Stdout, "Profile %q saved to %s\n", name, ConfigPath())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Profile name (required)")
	cmd.Flags().StringVar(&host, "profile-host", "", "API host URL stored in the profile")
	cmd.Flags().StringVar(&token, "profile-token", "", "Bearer token stored in the profile")
	cmd.Flags().StringVar(&output, "default-output", "", "Default output format stored in the profile (table, json)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newConfigUseProfileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use-profile <name>",
		Short: "Set the active configuration profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadUserConfig()
			if err != nil {
				return fmt.Errorf("no config found: %w", err)
			}
			name := args[0]
			if _, ok := cfg.Profiles[name]; !ok {
				return fmt.Errorf("profile %q not found", name)
			}
			cfg.CurrentProfile = name
			if err := SaveUserConfig(cfg); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(os.Stdout, map[string]string{"status": "ok", "active_profile": name})
			}
			_, _ = fmt.Fprintf(os.Stdout, "Active profile set to %q\n", name)
			return nil
		},
	}
}
