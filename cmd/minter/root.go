package main

import (
	"strings"

	. "github.com/alexdcox/cardano-minter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "minter",
	Short:         "Mint Cardano NFTs from a connected wallet",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return SetLogLevel(viper.GetString("log_level"))
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./minter.yaml)")
	rootCmd.PersistentFlags().String("loglevel", "", "Set the log level (trace|debug|info|warn|error|fatal)")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("loglevel"))
}

func initConfig() {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("minter")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.SetEnvPrefix("MINTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("blockfrost.mainnet", "MINTER_BLOCKFROST_API_KEY_MAINNET", "BLOCKFROST_API_KEY_MAINNET")
	_ = viper.BindEnv("blockfrost.preprod", "MINTER_BLOCKFROST_API_KEY_PREPROD", "BLOCKFROST_API_KEY_PREPROD")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Debug().Msg("no config file found, using defaults and environment")
		} else {
			log.Fatal().Msgf("failed to read config file: %+v", err)
		}
	} else {
		log.Debug().Msgf("loaded config from '%s'", viper.ConfigFileUsed())
	}
}

func setDefaults() {
	viper.SetDefault("listen", "localhost:3003")
	viper.SetDefault("database", "minter.db")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("wallet_bridge.allowed_urls", []string{})
	viper.SetDefault("timeouts.wallet_operation", DefaultTimeouts.WalletOperation)
	viper.SetDefault("timeouts.transaction", DefaultTimeouts.Transaction)
	viper.SetDefault("timeouts.network_detection", DefaultTimeouts.NetworkDetection)
}

func loadConfig() (config *Config, err error) {
	config = &Config{}
	if err = viper.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	config.Timeouts = config.Timeouts.WithDefaults()
	return
}
