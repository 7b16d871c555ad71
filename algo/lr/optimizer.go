// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lr

import (
	"fmt"

	pb "github.com/luxfi/interconnect/proto/pb/handshake"
)

// Optimizer is a closed tagged variant over the negotiable optimizer kinds.
// Only SGD carries parameters the engine can execute; the other kinds are
// negotiable on the wire but rejected at construction.
type Optimizer struct {
	Kind pb.Optimizer
	Sgd  *pb.SgdOptimizer
}

// NewOptimizer builds the suggested optimizer from the resolved flags.
func NewOptimizer(kind pb.Optimizer, learningRate float64) (Optimizer, error) {
	switch kind {
	case pb.Optimizer_OPTIMIZER_SGD:
		return Optimizer{
			Kind: kind,
			Sgd:  &pb.SgdOptimizer{LearningRate: learningRate},
		}, nil
	case pb.Optimizer_OPTIMIZER_MOMENTUM,
		pb.Optimizer_OPTIMIZER_ADAGRAD,
		pb.Optimizer_OPTIMIZER_ADADELTA,
		pb.Optimizer_OPTIMIZER_RMSPROP,
		pb.Optimizer_OPTIMIZER_ADAM,
		pb.Optimizer_OPTIMIZER_ADAMAX,
		pb.Optimizer_OPTIMIZER_NADAM:
		return Optimizer{}, fmt.Errorf("lr: optimizer %s not implemented", kind)
	default:
		return Optimizer{}, fmt.Errorf("lr: unspecified optimizer type %d", kind)
	}
}
