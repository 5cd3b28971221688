package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"grael/core"
)

func keygenCmd() *cobra.Command {
	var mnemonic bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a fresh ed25519 keypair and print its WIF and address",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				priv core.PrivateKey
				pub  core.PublicKey
				err  error
			)
			if mnemonic {
				var phrase string
				priv, pub, phrase, err = core.NewMnemonicKeyPair(256)
				if err != nil {
					return err
				}
				fmt.Println("mnemonic:       ", phrase)
			} else {
				priv, pub, err = core.GenerateKeyPair()
				if err != nil {
					return err
				}
			}
			fmt.Println("private_key_wif:", core.PrivateKeyToWif(priv))
			fmt.Println("address:        ", core.PublicKeyToAddress(pub))
			return nil
		},
	}
	cmd.Flags().BoolVar(&mnemonic, "mnemonic", false, "derive the key from a freshly generated BIP-39 recovery phrase")
	return cmd
}
