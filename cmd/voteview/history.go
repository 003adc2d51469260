package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vote-monitoring/internal/chain"
	"vote-monitoring/internal/logger"
	"vote-monitoring/internal/rpc"
	"vote-monitoring/internal/table"
	"vote-monitoring/internal/votetx"
)

var (
	historyLimit  int
	historyBefore string
)

var historyCmd = &cobra.Command{
	Use:   "history <vote-account>",
	Short: "Render the vote landing table for a vote account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHistory(args[0])
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 10, "number of transactions to process")
	historyCmd.Flags().StringVar(&historyBefore, "before", "", "start strictly before this transaction signature")
}

func runHistory(accountArg string) error {
	cfg := loadConfig()
	log := logger.New(cfg.Debug)

	account, err := chain.ParsePubkey(accountArg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := rpc.NewClient(cfg.RPCURL)
	extractor := votetx.NewExtractor(client, cfg.VoteProgramID, log)

	extraction, err := extractor.Extract(ctx, account, historyLimit, historyBefore)
	if err != nil {
		return err
	}
	fmt.Printf("%d transactions to process\n", extraction.Fetched)
	if len(extraction.Metas) == 0 {
		fmt.Println("no vote transactions found")
		return nil
	}

	tbl, err := table.Build(extraction.Metas, extraction.MaxDepth)
	if err != nil {
		return err
	}
	if tbl.Len() == 0 {
		fmt.Println("no rows to display")
		return nil
	}

	confirmedSlots, err := client.GetBlocks(ctx, tbl.StartSlot, tbl.EndSlot)
	if err != nil {
		return err
	}
	confirmed := make(map[chain.Slot]struct{}, len(confirmedSlots))
	for _, slot := range confirmedSlots {
		confirmed[slot] = struct{}{}
	}

	fmt.Println()
	summary := tbl.Render(os.Stdout, confirmed)
	summary.Fprint(os.Stdout)
	return nil
}
