package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imperfectform/predictbot/internal/crypto"
)

type keyEncryptArguments struct {
	PrivateKey string
	Password   string
	Out        string
}

type keyAddressArguments struct {
	Path string
}

var (
	keyEncryptArgs keyEncryptArguments
	keyAddressArgs keyAddressArguments
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "manage the bot wallet key",
	Long:  ``,
}

var keyEncryptCmd = &cobra.Command{
	Use:   "encrypt",
	Short: "encrypt a hex private key into a key file",
	Long: `Reads the key from --private-key or PREDICTBOT_WALLET_PRIVATE_KEY and the
password from --password or PREDICTBOT_WALLET_KEY_PASSWORD.`,
	RunE: keyEncryptRun,
}

var keyAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "print the address stored in a key file",
	Long:  ``,
	RunE:  keyAddressRun,
}

func init() {
	keyEncryptCmd.Flags().StringVarP(&keyEncryptArgs.PrivateKey, "private-key", "k", "", "hex private key")
	keyEncryptCmd.Flags().StringVarP(&keyEncryptArgs.Password, "password", "p", "", "key file password")
	keyEncryptCmd.Flags().StringVarP(&keyEncryptArgs.Out, "out", "o", "bot-key.json", "output key file")
	keyAddressCmd.Flags().StringVarP(&keyAddressArgs.Path, "file", "f", "bot-key.json", "key file")
	keyCmd.AddCommand(keyEncryptCmd)
	keyCmd.AddCommand(keyAddressCmd)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func keyEncryptRun(cmd *cobra.Command, args []string) error {
	pk := firstNonEmpty(keyEncryptArgs.PrivateKey, os.Getenv("PREDICTBOT_WALLET_PRIVATE_KEY"))
	if pk == "" {
		return errors.New("no private key: pass --private-key or set PREDICTBOT_WALLET_PRIVATE_KEY")
	}
	password := firstNonEmpty(keyEncryptArgs.Password, os.Getenv("PREDICTBOT_WALLET_KEY_PASSWORD"))
	if password == "" {
		return errors.New("no password: pass --password or set PREDICTBOT_WALLET_KEY_PASSWORD")
	}

	data, err := crypto.EncryptKey(pk, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(keyEncryptArgs.Out, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	addr, err := crypto.KeyAddress(data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s for %s\n", keyEncryptArgs.Out, addr)
	return nil
}

func keyAddressRun(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(keyAddressArgs.Path)
	if err != nil {
		return fmt.Errorf("read key file: %w", err)
	}
	addr, err := crypto.KeyAddress(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), addr)
	return nil
}
