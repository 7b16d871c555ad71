// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/interconnect/algo/lr"
	"github.com/luxfi/interconnect/algo/psi"
	"github.com/luxfi/interconnect/config"
	"github.com/luxfi/interconnect/party"
	pb "github.com/luxfi/interconnect/proto/pb/handshake"
	"github.com/luxfi/interconnect/transport"
)

func run(flags *config.Flags) error {
	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}
	logger := log.NewLogger("interconnect")

	tr, err := transport.New(transport.Config{
		Parties:     cfg.Parties,
		Rank:        cfg.Rank,
		RecvTimeout: cfg.RecvTimeout,
		Log:         logger,
		Registerer:  prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}
	defer tr.Close()

	handler, err := newHandler(cfg, tr, logger)
	if err != nil {
		return err
	}

	p := party.New(tr, logger, cfg.Version, cfg.DisableHandshake)
	return p.Run(handler)
}

// newHandler dispatches on the suggested algorithm, enforcing the protocol
// family each algorithm rides on.
func newHandler(cfg *config.AppConfig, tr transport.Transport, logger log.Logger) (party.Handler, error) {
	switch cfg.Algo {
	case pb.AlgoType_ALGO_TYPE_ECDH_PSI:
		if len(cfg.ProtocolFamilies) == 0 ||
			cfg.ProtocolFamilies[0] != pb.ProtocolFamily_PROTOCOL_FAMILY_ECC {
			return nil, fmt.Errorf("ECDH-PSI requires the ecc protocol family")
		}
		logger.Info("run ECDH-PSI", zap.Int32("rank", cfg.Rank))
		return psi.NewHandler(psi.NewContext(cfg), tr, logger), nil
	case pb.AlgoType_ALGO_TYPE_SS_LR:
		if len(cfg.ProtocolFamilies) == 0 ||
			cfg.ProtocolFamilies[0] != pb.ProtocolFamily_PROTOCOL_FAMILY_SS {
			return nil, fmt.Errorf("SS-LR requires the ss protocol family")
		}
		logger.Info("run SS-LR", zap.Int32("rank", cfg.Rank))
		ctx, err := lr.NewContext(cfg, tr.WorldSize())
		if err != nil {
			return nil, err
		}
		return lr.NewHandler(ctx, tr, logger), nil
	default:
		return nil, fmt.Errorf("no handler for algorithm %d", cfg.Algo)
	}
}
