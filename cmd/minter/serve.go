package main

import (
	"os"
	"os/signal"
	"syscall"

	. "github.com/alexdcox/cardano-minter"
	"github.com/alexdcox/cardano-minter/blockfrost"
	"github.com/alexdcox/cardano-minter/txbuilder"
	"github.com/alexdcox/cardano-minter/walletbridge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the minting http api",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		config, err := loadConfig()
		if err != nil {
			return
		}

		for _, network := range []Network{NetworkMainNet, NetworkPreProd} {
			if _, err2 := config.Credentials().For(network); err2 != nil {
				log.Warn().Msgf("%s: %s", network, MsgMissingCredential)
			}
		}

		var journal Journal
		if config.Database == "" || config.Database == ":memory:" {
			journal = NewInMemoryJournal()
		} else if journal, err = NewSqliteJournal(config.Database); err != nil {
			return
		}
		defer func() {
			if err2 := journal.Close(); err2 != nil {
				log.Error().Msgf("%+v", err2)
			}
		}()

		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics := NewMetrics(registry)

		resolver := NewNetworkResolver(config.Credentials(), blockfrost.New, config.Timeouts)
		resolver.Metrics = metrics

		minter := NewMinter(txbuilder.New, journal, metrics, config.Timeouts)

		server := NewHttpServer(config, resolver, minter, journal, registry)
		server.Connect = walletbridge.NewConnector

		errs := make(chan error, 1)
		go func() {
			errs <- server.Start()
		}()

		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err = <-errs:
			return
		case <-c:
		}

		log.Info().Msg("caught interrupt/terminate signal, attempting graceful shutdown...")

		if err = server.Stop(); err != nil {
			return
		}

		log.Info().Msg("graceful shutdown complete")
		return
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Set host:port for the http listener")
	serveCmd.Flags().String("database", "", "Path to the sqlite attempt journal (':memory:' to keep it in memory)")
	_ = viper.BindPFlag("listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("database", serveCmd.Flags().Lookup("database"))

	rootCmd.AddCommand(serveCmd)
}
