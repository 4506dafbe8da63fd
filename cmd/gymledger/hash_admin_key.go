package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/smallbiznis/gymledger/internal/adminkey"
	"github.com/spf13/cobra"
)

func hashAdminKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-admin-key [key]",
		Short: "Print the Argon2id hash to use as ADMIN_API_KEY",
		Long: `Hashes an admin key so the plain secret does not have to live in the
environment. Without an argument the key is read from stdin.`,
		Example: `  echo -n "$KEY" | gymledger hash-admin-key`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := readAdminKey(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			encoded, err := adminkey.Hash(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
}

func readAdminKey(in io.Reader, args []string) (string, error) {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		key = line
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("admin key must not be empty")
	}
	return key, nil
}
