// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"os"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/interconnect/config"
)

func main() {
	var flags config.Flags
	rootCmd := &cobra.Command{
		Use:   "interconnect",
		Short: "Multi-party interconnection runtime for ECDH-PSI and SS-LR",
		Long: `Each cohort member runs this binary with its own rank. The parties first
negotiate one mutually agreed parameter set over the mesh, then execute the
agreed computation: a two-party ECDH private set intersection or an N-party
secret-sharing logistic regression.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(&flags)
		},
	}
	flags.Bind(rootCmd.Flags())

	if err := rootCmd.Execute(); err != nil {
		log.NewLogger("interconnect").Error("run failed", zap.Error(err))
		os.Exit(-1)
	}
}
