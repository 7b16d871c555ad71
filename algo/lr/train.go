// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lr

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/luxfi/interconnect/engine/sslr"
	"github.com/luxfi/interconnect/negotiate"
)

// RunAlgo converts the negotiated parameters into the engine configuration
// and drives the training loop.
func (h *Handler) RunAlgo() error {
	engine, err := sslr.New(sslr.Config{
		Protocol:        h.ctx.Ss.Protocol,
		FieldType:       h.ctx.Ss.FieldType,
		FxpBits:         h.ctx.Ss.FxpBits,
		TruncMode:       h.ctx.Ss.TruncMode,
		ShardFormat:     h.ctx.Ss.ShardSerializeFormat,
		LastBatchPolicy: h.ctx.Hyper.LastBatchPolicy,
		UseTTP:          h.ctx.Ttp.UseTTP,
		AdjustRank:      h.ctx.Ttp.AdjustRank,
	}, h.tr, h.log)
	if err != nil {
		return err
	}

	x, y, err := h.processDataset(engine)
	if err != nil {
		return err
	}

	w, err := h.train(engine, x, y)
	if err != nil {
		return err
	}

	if err := h.reportAccuracy(engine, x, y, w); err != nil {
		return err
	}

	return h.produceOutput(engine, w)
}

// processDataset splits the label column, encodes the local block, and
// concatenates the cohort-wide feature matrix: each party contributes its own
// encoded block and zero shares for everyone else's columns, which sums to
// the joint plaintext across the cohort.
func (h *Handler) processDataset(engine *sslr.Engine) (*sslr.Matrix, *sslr.Matrix, error) {
	if h.dataset == nil {
		return nil, nil, errors.New("lr: dataset not prepared")
	}
	self := h.tr.Rank()
	world := h.tr.WorldSize()
	sampleSize := int(h.ctx.Io.SampleSize)

	var features [][]float64
	y := sslr.NewMatrix(sampleSize, 1)
	if h.ctx.HasLabel(self) {
		features = make([][]float64, len(h.dataset))
		labels := make([][]float64, len(h.dataset))
		for i, row := range h.dataset {
			features[i] = row[:len(row)-1]
			labels[i] = row[len(row)-1:]
		}
		y = engine.Encode(labels)
	} else {
		features = h.dataset
	}

	blocks := make([]*sslr.Matrix, world)
	for rank := int32(0); rank < world; rank++ {
		if rank == self {
			blocks[rank] = engine.Encode(features)
			continue
		}
		blocks[rank] = sslr.NewMatrix(sampleSize, int(h.ctx.Io.FeatureNums[rank]))
	}
	x := engine.HConcat(blocks...)

	// Free the plaintext buffer once shares exist.
	h.dataset = nil
	return x, y, nil
}

// train runs the epoch/batch SGD loop. Only full batches run; the DISCARD
// last-batch policy drops the remainder.
func (h *Handler) train(engine *sslr.Engine, x, y *sslr.Matrix) (*sslr.Matrix, error) {
	w := sslr.NewMatrix(x.Cols+1, 1)
	numBatch := h.ctx.Io.SampleSize / h.ctx.Hyper.BatchSize
	if numBatch == 0 {
		return nil, fmt.Errorf("lr: batch size %d exceeds sample size %d",
			h.ctx.Hyper.BatchSize, h.ctx.Io.SampleSize)
	}

	for epoch := int64(0); epoch < h.ctx.Hyper.NumEpoch; epoch++ {
		for batch := int64(0); batch < numBatch; batch++ {
			h.log.Debug("running train iteration",
				zap.Int64("epoch", epoch),
				zap.Int64("batch", batch),
			)
			rowsBeg := int(batch * h.ctx.Hyper.BatchSize)
			rowsEnd := rowsBeg + int(h.ctx.Hyper.BatchSize)

			var err error
			w, err = h.trainStep(engine, x.SliceRows(rowsBeg, rowsEnd), y.SliceRows(rowsBeg, rowsEnd), w)
			if err != nil {
				return nil, err
			}
		}
	}
	return w, nil
}

// trainStep is one SGD update on a full batch.
func (h *Handler) trainStep(engine *sslr.Engine, x, y, w *sslr.Matrix) (*sslr.Matrix, error) {
	paddedX := engine.HConcat(x, engine.PublicColumn(x.Rows, 1.0))

	z, err := engine.MatMul(paddedX, w)
	if err != nil {
		return nil, err
	}
	pred, err := engine.Sigmoid(h.ctx.SigmoidMode, z)
	if err != nil {
		return nil, err
	}

	errTerm := engine.Sub(pred, y)

	grad, err := engine.MatMul(engine.Transpose(paddedX), errTerm)
	if err != nil {
		return nil, err
	}

	if usePenaltyTerm(h.ctx.Hyper.L2Norm) {
		// The bias entry is excluded from the penalty.
		wNoBias := w.Clone()
		wNoBias.Set(wNoBias.Rows-1, 0, 0)
		grad = engine.Add(grad, engine.MulPublic(wNoBias, h.ctx.Hyper.L2Norm))
	}

	step := h.calculateStep(engine, grad)
	return engine.Sub(w, step), nil
}

// calculateStep is the SGD rule: step = (learning_rate / batch_size) * grad.
func (h *Handler) calculateStep(engine *sslr.Engine, grad *sslr.Matrix) *sslr.Matrix {
	return engine.MulPublic(grad, h.ctx.Optimizer.Sgd.LearningRate/float64(h.ctx.Hyper.BatchSize))
}

// reportAccuracy reveals labels and scores and logs the training accuracy.
func (h *Handler) reportAccuracy(engine *sslr.Engine, x, y, w *sslr.Matrix) error {
	paddedX := engine.HConcat(x, engine.PublicColumn(x.Rows, 1.0))
	z, err := engine.MatMul(paddedX, w)
	if err != nil {
		return err
	}
	scores, err := engine.Reveal(z)
	if err != nil {
		return err
	}
	labels, err := engine.Reveal(y)
	if err != nil {
		return err
	}

	total, accurate := 0, 0
	for i := range labels {
		truth := labels[i][0]
		score := scores[i][0]
		if (negotiate.AlmostZero(truth) && score < 0.5) ||
			(negotiate.AlmostEqual(truth, 1, 2) && score >= 0.5) {
			accurate++
		}
		total++
	}
	h.log.Info("training finished",
		zap.Float64("accuracy", float64(accurate)/float64(total)),
		zap.Int("samples", total),
	)
	return nil
}

// produceOutput reveals the weights and writes one value per line.
func (h *Handler) produceOutput(engine *sslr.Engine, w *sslr.Matrix) error {
	weights, err := engine.Reveal(w)
	if err != nil {
		return err
	}
	flat := make([]float64, len(weights))
	for i, row := range weights {
		flat[i] = row[0]
	}

	out, err := outputFileName(h.ctx.Output, h.tr.Rank())
	if err != nil {
		return err
	}
	if err := writeWeights(out, flat); err != nil {
		return err
	}
	h.log.Info("wrote weights",
		zap.String("path", out),
		zap.Int("count", len(flat)),
	)
	return nil
}
