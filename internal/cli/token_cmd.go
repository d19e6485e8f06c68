package cli

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/utafrali/tenantgate/internal/webhook"
)

func newTokenCmd() *cobra.Command {
	var (
		subject  string
		tenantID string
		email    string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 session token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := stringFromFlagOrEnv(cmd, "secret", "JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("a signing secret is required (--secret or $JWT_SECRET)")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}

			now := time.Now()
			claims := jwt.MapClaims{
				"sub": subject,
				"iat": now.Unix(),
				"exp": now.Add(ttl).Unix(),
			}
			if tenantID != "" {
				claims["tenant_id"] = tenantID
			}
			if email != "" {
				claims["email"] = email
			}

			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			return printResult(cmd, map[string]any{
				"token":      signed,
				"expires_at": now.Add(ttl).UTC().Format(time.RFC3339),
			}, signed)
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "Subject (user id)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant id claim")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.Flags().String("secret", "", "HS256 secret (default $JWT_SECRET)")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

func newSignWebhookCmd() *cobra.Command {
	var (
		userID string
		extra  map[string]string
	)

	cmd := &cobra.Command{
		Use:   "sign-webhook",
		Short: "Build a signed_request value for exercising provider callbacks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := stringFromFlagOrEnv(cmd, "secret", "WEBHOOK_APP_SECRET")
			if secret == "" {
				return fmt.Errorf("an app secret is required (--secret or $WEBHOOK_APP_SECRET)")
			}

			payload := map[string]any{
				"algorithm": "HMAC-SHA256",
				"issued_at": time.Now().Unix(),
				"user_id":   userID,
			}
			for k, v := range extra {
				payload[k] = v
			}

			signed, err := webhook.Sign(secret, payload)
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]string{"signed_request": signed}, signed)
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "Provider-scoped user id")
	cmd.Flags().StringToStringVar(&extra, "field", nil, "Extra payload fields (key=value)")
	cmd.Flags().String("secret", "", "App secret (default $WEBHOOK_APP_SECRET)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}
