package sketch

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/xtxerr/hivewatch/internal/errors"
)

const (
	MinHLLPrecision = 4
	MaxHLLPrecision = 16

	two32 = float64(1 << 32)
)

// HyperLogLog estimates the number of distinct strings added to it.
type HyperLogLog struct {
	precision uint8
	m         uint32
	registers []uint8
	alpha     float64
}

// NewHyperLogLog creates an estimator with 2^precision registers.
func NewHyperLogLog(precision int) (*HyperLogLog, error) {
	if precision < MinHLLPrecision || precision > MaxHLLPrecision {
		return nil, errors.NewInvalidValue("precision", precision,
			fmt.Sprintf("must be in [%d, %d]", MinHLLPrecision, MaxHLLPrecision))
	}

	p := uint8(precision)
	m := uint32(1) << p

	var alpha float64
	switch m {
	case 16:
		alpha = 0.673
	case 32:
		alpha = 0.697
	case 64:
		alpha = 0.709
	default:
		alpha = 0.7213 / (1 + 1.079/float64(m))
	}

	return &HyperLogLog{
		precision: p,
		m:         m,
		registers: make([]uint8, m),
		alpha:     alpha,
	}, nil
}

// Add records an element. Adding the same element again is a no-op.
func (h *HyperLogLog) Add(element string) {
	digest := hash(element)
	idx := digest >> (64 - h.precision)

	width := 64 - int(h.precision)
	zeros := bits.LeadingZeros64(digest << h.precision)
	if zeros > width {
		zeros = width
	}
	rank := uint8(zeros + 1)

	if rank > h.registers[idx] {
		h.registers[idx] = rank
	}
}

// Estimate returns the approximate distinct count, rounded to nearest.
func (h *HyperLogLog) Estimate() uint64 {
	m := float64(h.m)
	sum := 0.0
	zeros := 0
	for _, r := range h.registers {
		sum += math.Ldexp(1, -int(r))
		if r == 0 {
			zeros++
		}
	}

	estimate := h.alpha * m * m / sum

	if estimate <= 2.5*m {
		if zeros > 0 {
			estimate = m * math.Log(m/float64(zeros))
		}
	} else if estimate > two32/30 && estimate < two32 {
		estimate = -two32 * math.Log(1-estimate/two32)
	}

	return uint64(math.Round(estimate))
}

// Merge folds other into h by taking the register-wise maximum.
func (h *HyperLogLog) Merge(other *HyperLogLog) error {
	if other.precision != h.precision {
		return errors.NewInvalidValue("precision", other.precision,
			fmt.Sprintf("cannot merge into precision %d", h.precision))
	}
	for i, r := range other.registers {
		if r > h.registers[i] {
			h.registers[i] = r
		}
	}
	return nil
}

// StandardError is the expected relative error 1.04/sqrt(m).
func (h *HyperLogLog) StandardError() float64 {
	return 1.04 / math.Sqrt(float64(h.m))
}

// Precision returns b.
func (h *HyperLogLog) Precision() int {
	return int(h.precision)
}
