package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	. "github.com/alexdcox/cardano-minter"
	"github.com/alexdcox/cardano-minter/rpcclient"
	"github.com/spf13/cobra"
)

var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "List journaled mint attempts from a running server",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		client, err := rpcClient(cmd)
		if err != nil {
			return
		}

		session, _ := cmd.Flags().GetString("session")
		pending, _ := cmd.Flags().GetBool("pending")
		limit, _ := cmd.Flags().GetInt("limit")

		attempts, err := client.ListAttempts(cmd.Context(), &rpcclient.ListAttemptsIn{
			SessionID: session,
			Pending:   pending,
			Limit:     limit,
		})
		if err != nil {
			return
		}

		printAttempts(attempts)
		return
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [attempt id]",
	Short: "Check whether an attempt's pending transaction reached the chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		client, err := rpcClient(cmd)
		if err != nil {
			return
		}

		out, err := client.Reconcile(cmd.Context(), args[0])
		if err != nil {
			return
		}

		fmt.Printf("on chain:    %t\n", out.OnChain)
		printAttempts([]*Attempt{out.Attempt})
		return
	},
}

func rpcClient(cmd *cobra.Command) (*rpcclient.RpcClient, error) {
	server, _ := cmd.Flags().GetString("server")
	return rpcclient.NewRpcClient(server)
}

func printAttempts(attempts []*Attempt) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tNETWORK\tSTATUS\tTX\tPENDING TX\tERROR")
	for _, a := range attempts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID,
			a.StartedAt.Format("2006-01-02 15:04:05"),
			a.Network,
			a.Status,
			a.TxID,
			a.PendingTxID,
			a.Error)
	}
	_ = w.Flush()
}

func init() {
	attemptsCmd.PersistentFlags().String("server", "http://localhost:3003", "Base url of a running minter server")
	attemptsCmd.Flags().String("session", "", "Only attempts of this session")
	attemptsCmd.Flags().Bool("pending", false, "Only attempts with an unconfirmed pending transaction")
	attemptsCmd.Flags().Int("limit", 0, "Maximum number of attempts")

	attemptsCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(attemptsCmd)
}
