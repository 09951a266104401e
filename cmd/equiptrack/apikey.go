package main

import (
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/foxzi/equiptrack/internal/auth"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "API key helpers",
}

var apikeyGenerateCmd = &cobra.Command{
	Use:   "generate [email]",
	Short: "Generate a new API key and its config entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyGenerate,
}

var apikeyHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash an existing key for auth.api_keys",
	RunE:  runAPIKeyHash,
}

func init() {
	apikeyCmd.AddCommand(apikeyGenerateCmd)
	apikeyCmd.AddCommand(apikeyHashCmd)
}

func runAPIKeyGenerate(cmd *cobra.Command, args []string) error {
	key, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	hash, err := auth.HashKey(key)
	if err != nil {
		return err
	}

	fmt.Printf("API key (shown once): %s\n\n", key)
	fmt.Println("Add to the configuration:")
	fmt.Print(apiKeyEntry(args[0], hash))
	return nil
}

func runAPIKeyHash(cmd *cobra.Command, args []string) error {
	fmt.Print("Enter API key: ")
	key, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read key: %w", err)
	}
	fmt.Println()

	hash, err := auth.HashKey(string(key))
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func apiKeyEntry(email, hash string) string {
	return fmt.Sprintf("auth:\n  api_keys:\n    - email: %q\n      key_hash: %q\n", email, hash)
}
