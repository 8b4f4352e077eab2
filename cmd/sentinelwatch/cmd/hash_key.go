package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentinelwatch/sentinelwatch/internal/domain/auth"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [token]",
	Short: "Generate an Argon2id hash for a bearer token",
	Long: `Generate an Argon2id hash of a bearer token for the server.bearer_token_hash
config field. sentinelwatch checks one shared, operator-issued token for
remote (non-localhost) callers; this command produces the hash you store,
not the token itself.

Example:
  sentinelwatch hash-key "my-secret-token"
  # Output: $argon2id$v=19$m=47104,t=1,p=1$...

Security note: the token will appear in shell history.
Consider clearing history after use or using an environment variable:
  sentinelwatch hash-key "$MY_TOKEN"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashKeyArgon2id(args[0])
		if err != nil {
			return fmt.Errorf("hashing token: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
