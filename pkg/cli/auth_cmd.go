package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers",
	}
	cmd.AddCommand(newAuthTokenCmd())
	return cmd
}

func newAuthTokenCmd() *cobra.Command {
	var (
		subject      string
		project      string
		projectClaim string
		secret       string
		expires      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a dev-mode JWT and save it to the active profile",
		Long:  "Generate an HS256 JWT for development. It is accepted by servers started with JWT_SECRET and saved to the active profile.",
		Example: `  bff auth token --subject alice --project proj-1 --secret dev-secret`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			now := time.Now()
			claims := jwt.MapClaims{
				"sub": subject,
				"iat": now.Unix(),
				"exp": now.Add(expires).Unix(),
			}
			if project != "" {
				claims[projectClaim] = project
			}
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}

			cfg, err := LoadUserConfig()
			if err != nil {
				cfg = emptyUserConfig()
			}
			if cfg.CurrentProfile == "" {
				cfg.CurrentProfile = "default"
			}
			p := cfg.Profiles[cfg.CurrentProfile]
			p.Token = signed
			cfg.Profiles[cfg.CurrentProfile] = p
			if err := SaveUserConfig(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			_, _ = fmt.Fprintln(os.Stdout, signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "User ID (JWT sub claim)")
	cmd.Flags().StringVar(&project, "project", "", "Project ID claim")
	cmd.Flags().StringVar(&projectClaim, "project-claim", "project_id", "Name of the project claim")
	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret (HS256)")
	cmd.Flags().DurationVar(&expires, "expires", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}
