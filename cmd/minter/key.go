package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	. "github.com/alexdcox/cardano-minter"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Signing key tools",
}

var keyGenCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a payment signing key in cardano-cli format",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		w := cmd.OutOrStdout()
		out, _ := cmd.Flags().GetString("out")
		network, _ := cmd.Flags().GetString("network")

		seed := make([]byte, ed25519.SeedSize)
		if _, err = rand.Read(seed); err != nil {
			return errors.Wrap(err, "failed to generate random seed")
		}

		keyCbor, err := cbor.Marshal(seed)
		if err != nil {
			return errors.WithStack(err)
		}

		envelope, err := json.MarshalIndent(map[string]string{
			"type":        "PaymentSigningKeyShelley_ed25519",
			"description": "Payment Signing Key",
			"cborHex":     hex.EncodeToString(keyCbor),
		}, "", "    ")
		if err != nil {
			return errors.WithStack(err)
		}

		if err = os.WriteFile(out, envelope, 0600); err != nil {
			return errors.Wrapf(err, "failed to write key to '%s'", out)
		}

		wallet, err := NewKeyWallet(seed, Network(network), nil)
		if err != nil {
			return
		}

		fmt.Fprintf(w, "key file:          %s\n", out)
		fmt.Fprintf(w, "public:            %x\n", wallet.PublicKey())
		fmt.Fprintf(w, "addr (bech32):     %s\n", wallet.Address())
		return
	},
}

var keyInspectCmd = &cobra.Command{
	Use:   "inspect [key file]",
	Short: "Print the public key and payment addresses of a signing key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		w := cmd.OutOrStdout()
		key, err := LoadSigningKeyFile(args[0])
		if err != nil {
			return
		}

		keyType := "ed25519"
		if len(key) == ExtendedSigningKeySize {
			keyType = "ed25519 extended"
		}
		fmt.Fprintf(w, "key type:          %s\n", keyType)

		for _, network := range []Network{NetworkMainNet, NetworkPreProd} {
			wallet, err2 := NewKeyWallet(key, network, nil)
			if err2 != nil {
				return err2
			}

			address, err2 := DecodeAddress(wallet.Address(), network)
			if err2 != nil {
				return err2
			}
			header, err2 := address.Header()
			if err2 != nil {
				return err2
			}

			fmt.Fprintln(w)
			fmt.Fprintf(w, "network:           %s\n", network)
			fmt.Fprintf(w, "public:            %x\n", wallet.PublicKey())
			fmt.Fprintf(w, "addr header byte:  %s\n", header)
			fmt.Fprintf(w, "addr (8-bit):      %x\n", address.Bytes())
			fmt.Fprintf(w, "addr (bech32):     %s\n", wallet.Address())
		}
		return
	},
}

var addressDecodeCmd = &cobra.Command{
	Use:   "decode-address [bech32]",
	Short: "Decode a payment address for each supported network",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		address := args[0]
		fmt.Fprintf(w, "\ndecoding address:  %s\n\n", address)

		for _, network := range []Network{NetworkMainNet, NetworkPreProd} {
			fmt.Fprintf(w, "network:           %s\n", network)

			decoded, err := DecodeAddress(address, network)
			if err != nil {
				fmt.Fprintf(w, "invalid:           %v\n\n", err)
				continue
			}

			header, _ := decoded.Header()
			fmt.Fprintf(w, "addr header byte:  %s\n", header)
			fmt.Fprintf(w, "addr (8-bit):      %x\n", decoded.Bytes())
			if keyHash, err := decoded.PaymentKeyHash(); err == nil {
				fmt.Fprintf(w, "payment key hash:  %x\n", keyHash)
			}
			fmt.Fprintln(w)
		}
	},
}

func init() {
	keyGenCmd.Flags().String("out", "payment.skey", "Where to write the signing key")
	keyGenCmd.Flags().String("network", string(DefaultNetwork), "Network for the printed address")

	keyCmd.AddCommand(keyGenCmd, keyInspectCmd, addressDecodeCmd)
	rootCmd.AddCommand(keyCmd)
}
