package classify

import (
	"math"

	"github.com/raaihank/binsentinel/internal/model"
)

// forward runs the native inference path: the scaled vector is treated as a
// 1-D signal, compressed by the convolution stages, summarized by the
// aggregation stage, then scored by the dense head. Training-only
// regularization (dropout, batch normalization) has no inference effect and
// is not represented.
func forward(net *model.Network, input []float64) []float64 {
	// seq[channel][position]; the input starts as a single channel.
	seq := [][]float64{input}
	for _, layer := range net.Conv {
		seq = maxPoolHalve(convReLU(layer, seq))
	}

	out := lstmLastHidden(net.LSTM, seq)
	for i, layer := range net.Dense {
		out = dense(layer, out)
		if i < len(net.Dense)-1 {
			reluInPlace(out)
		}
	}
	return out
}

// convReLU applies a same-padded 1-D convolution with ReLU activation.
func convReLU(layer model.ConvLayer, in [][]float64) [][]float64 {
	if len(in) == 0 || len(in[0]) == 0 {
		return in
	}
	kernel := len(layer.Weights[0][0])
	pad := kernel / 2
	length := len(in[0])

	out := make([][]float64, len(layer.Weights))
	for o, kernels := range layer.Weights {
		row := make([]float64, length)
		for pos := 0; pos < length; pos++ {
			sum := layer.Bias[o]
			for c, k := range kernels {
				for j, w := range k {
					p := pos + j - pad
					if p < 0 || p >= length {
						continue
					}
					sum += w * in[c][p]
				}
			}
			if sum < 0 {
				sum = 0
			}
			row[pos] = sum
		}
		out[o] = row
	}
	return out
}

// maxPoolHalve downsamples each channel with a stride-2 max pool.
func maxPoolHalve(in [][]float64) [][]float64 {
	out := make([][]float64, len(in))
	for c, row := range in {
		n := len(row) / 2
		pooled := make([]float64, n)
		for i := 0; i < n; i++ {
			a, b := row[2*i], row[2*i+1]
			if b > a {
				a = b
			}
			pooled[i] = a
		}
		out[c] = pooled
	}
	return out
}

// lstmLastHidden runs the aggregation stage over the compressed sequence and
// returns the final hidden state. Each time step consumes one value per
// channel; gate rows are ordered input, forget, cell, output.
func lstmLastHidden(p *model.LSTMParams, seq [][]float64) []float64 {
	hidden := make([]float64, p.HiddenSize)
	cell := make([]float64, p.HiddenSize)
	steps := 0
	if len(seq) > 0 {
		steps = len(seq[0])
	}

	x := make([]float64, len(seq))
	gates := make([]float64, 4*p.HiddenSize)
	for t := 0; t < steps; t++ {
		for c := range seq {
			x[c] = seq[c][t]
		}
		for g := range gates {
			sum := p.Bias[g]
			for i, xv := range x {
				sum += p.WeightsX[g][i] * xv
			}
			for i, hv := range hidden {
				sum += p.WeightsH[g][i] * hv
			}
			gates[g] = sum
		}
		for i := 0; i < p.HiddenSize; i++ {
			in := sigmoid(gates[i])
			forget := sigmoid(gates[p.HiddenSize+i])
			candidate := math.Tanh(gates[2*p.HiddenSize+i])
			output := sigmoid(gates[3*p.HiddenSize+i])
			cell[i] = forget*cell[i] + in*candidate
			hidden[i] = output * math.Tanh(cell[i])
		}
	}
	return hidden
}

func dense(layer model.DenseLayer, in []float64) []float64 {
	out := make([]float64, len(layer.Weights))
	for o, weights := range layer.Weights {
		sum := layer.Bias[o]
		for i, w := range weights {
			sum += w * in[i]
		}
		out[o] = sum
	}
	return out
}

func reluInPlace(v []float64) {
	for i, x := range v {
		if x < 0 {
			v[i] = 0
		}
	}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
