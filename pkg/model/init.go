package model

import (
	"math"
	"math/rand"
	"time"

	"evoformer/pkg/model/attention"
	"evoformer/pkg/tensor"
)

// initRand is a package-level random number generator for weight
// initialization. Seed it with SetInitSeed for reproducible models.
var initRand *rand.Rand

// SetInitSeed sets the random seed for weight initialization (useful for
// testing and for bit-identical model construction).
func SetInitSeed(seed int64) {
	initRand = rand.New(rand.NewSource(seed))
}

func initRNG() *rand.Rand {
	if initRand == nil {
		initRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return initRand
}

// normalInit initializes a tensor with values from a normal distribution
// N(0, std^2). Used for embedding tables.
func normalInit(t *tensor.Tensor, std float64) {
	rng := initRNG()
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64() * std
	}
}

// xavierUniform initializes a tensor with Xavier/Glorot uniform values for
// the given fan-in and fan-out: U[-limit, limit] with
// limit = sqrt(6 / (fan_in + fan_out)).
func xavierUniform(t *tensor.Tensor, fanIn, fanOut int) {
	rng := initRNG()
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range t.Data {
		t.Data[i] = rng.Float64()*2*limit - limit
	}
}

// xavierUniformInit initializes a 2D weight matrix using its own dimensions
// as fan-in and fan-out.
func xavierUniformInit(t *tensor.Tensor) {
	fanIn := t.Shape[len(t.Shape)-2]
	fanOut := t.Shape[len(t.Shape)-1]
	xavierUniform(t, fanIn, fanOut)
}

// initAttention initializes the projection weights of an attention layer.
func initAttention(a *attention.MultiHeadAttention) {
	xavierUniformInit(a.WQuery)
	xavierUniformInit(a.WKey)
	xavierUniformInit(a.WValue)
	xavierUniformInit(a.OutProj)
}
