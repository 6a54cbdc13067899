package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/localcloud/internal/auth"
)

// tokenCmd 使用共享密钥签发 Bearer 令牌，供启用认证的服务端使用
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token signed with the server's JWT secret",
	Long: `Issue a bearer token for servers started with auth.enabled.

Example:
  export LCCTL_TOKEN=$(lcctl token --secret "$JWT_SECRET" --subject alice)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" {
			return fmt.Errorf("--secret is required")
		}
		if tokenRole != auth.RoleOperator && tokenRole != auth.RoleViewer {
			return fmt.Errorf("invalid role %q, expected %s or %s", tokenRole, auth.RoleOperator, auth.RoleViewer)
		}
		signed, err := auth.NewJWTManager(tokenSecret, tokenTTL).Generate(tokenSubject, tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), signed)
		return nil
	},
}

var (
	tokenSecret  string
	tokenSubject string
	tokenRole    string
	tokenTTL     time.Duration
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "JWT signing secret")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "lcctl", "Token subject")
	tokenCmd.Flags().StringVar(&tokenRole, "role", auth.RoleOperator, "Token role (operator, viewer)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}
