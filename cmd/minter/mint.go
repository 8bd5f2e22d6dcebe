package main

import (
	"context"
	"fmt"

	. "github.com/alexdcox/cardano-minter"
	"github.com/alexdcox/cardano-minter/blockfrost"
	"github.com/alexdcox/cardano-minter/txbuilder"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// mintCmd mints from a local signing key without the http api.
var mintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint an NFT with a local signing key",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		config, err := loadConfig()
		if err != nil {
			return
		}

		flags := cmd.Flags()
		keyPath, _ := flags.GetString("key")
		network, _ := flags.GetString("network")
		database, _ := flags.GetString("journal")

		req := MintRequest{Network: Network(network)}
		req.Quantity, _ = flags.GetString("quantity")
		req.Metadata.Name, _ = flags.GetString("name")
		req.Metadata.Image, _ = flags.GetString("image")
		req.Metadata.MediaType, _ = flags.GetString("media-type")
		req.Metadata.Description, _ = flags.GetString("description")

		if err = req.Validate(); err != nil {
			return
		}

		key, err := LoadSigningKeyFile(keyPath)
		if err != nil {
			return
		}

		resolver := NewNetworkResolver(config.Credentials(), blockfrost.New, config.Timeouts)

		session := resolver.NewSession()
		defer session.Close()

		if err = resolver.SelectNetwork(session, req.Network); err != nil {
			return
		}

		binding, err := session.Binding()
		if err != nil {
			return
		}

		wallet, err := NewKeyWallet(key, req.Network, binding.Provider)
		if err != nil {
			return
		}
		log.Info().Msgf("minting from %s", wallet.Address())

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if _, err = resolver.Connect(ctx, session, wallet); err != nil {
			return
		}

		var journal Journal = NewInMemoryJournal()
		if database != "" {
			if journal, err = NewSqliteJournal(database); err != nil {
				return
			}
		}
		defer journal.Close()

		cleanup := session.Subscribe(func(attempt Attempt) {
			if !attempt.Status.Terminal() && attempt.Message != "" {
				log.Info().Msg(attempt.Message)
			}
		})
		defer cleanup()

		attempt, err := NewMinter(txbuilder.New, journal, nil, config.Timeouts).Mint(ctx, session, req)
		if err != nil {
			return
		}

		if attempt.Status != StatusSucceeded {
			return errors.Errorf("%s (%s)", attempt.Error, attempt.Kind)
		}

		fmt.Printf("policy id:   %s\n", attempt.PolicyID)
		fmt.Printf("tx id:       %s\n", attempt.TxID)
		return
	},
}

func init() {
	flags := mintCmd.Flags()
	flags.String("key", "", "Path to the payment signing key (cardano-cli envelope or hex)")
	flags.String("network", string(DefaultNetwork), "Network to mint on (mainnet|preprod)")
	flags.String("quantity", "1", "Number of tokens to mint")
	flags.String("name", "", "Token name")
	flags.String("image", "", "Image uri")
	flags.String("media-type", "", "Image media type")
	flags.String("description", "", "Token description")
	flags.String("journal", "", "Path to a sqlite attempt journal")
	_ = mintCmd.MarkFlagRequired("key")
	_ = mintCmd.MarkFlagRequired("name")

	rootCmd.AddCommand(mintCmd)
}
