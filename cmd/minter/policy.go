package main

import (
	"encoding/hex"
	"fmt"

	. "github.com/alexdcox/cardano-minter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Print the single signature minting policy for an address or key",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		w := cmd.OutOrStdout()
		flags := cmd.Flags()
		address, _ := flags.GetString("address")
		keyPath, _ := flags.GetString("key")
		network, _ := flags.GetString("network")
		name, _ := flags.GetString("name")

		if address == "" && keyPath != "" {
			key, err2 := LoadSigningKeyFile(keyPath)
			if err2 != nil {
				return err2
			}
			wallet, err2 := NewKeyWallet(key, Network(network), nil)
			if err2 != nil {
				return err2
			}
			address = wallet.Address()
		}

		if address == "" {
			return errors.New("one of --address or --key is required")
		}

		script, err := NewForgeScript(address, Network(network))
		if err != nil {
			return
		}

		fmt.Fprintf(w, "address:     %s\n", address)
		fmt.Fprintf(w, "key hash:    %x\n", script.KeyHash)
		fmt.Fprintf(w, "script:      %s\n", hex.EncodeToString(script.Cbor()))
		fmt.Fprintf(w, "policy id:   %s\n", script.PolicyID())
		if name != "" {
			fingerprint, err2 := AssetFingerprint(script.PolicyID(), TokenNameHex(name))
			if err2 != nil {
				return err2
			}
			fmt.Fprintf(w, "asset:       %s.%s\n", script.PolicyID(), TokenNameHex(name))
			fmt.Fprintf(w, "fingerprint: %s\n", fingerprint)
		}
		return
	},
}

func init() {
	policyCmd.Flags().String("address", "", "Bech32 payment address")
	policyCmd.Flags().String("key", "", "Path to a payment signing key")
	policyCmd.Flags().String("network", string(DefaultNetwork), "Network (mainnet|preprod)")
	policyCmd.Flags().String("name", "", "Token name to print the asset id for")

	rootCmd.AddCommand(policyCmd)
}
