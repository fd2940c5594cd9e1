package fee

import (
	"errors"
	"math"
	"math/bits"
	"time"
)

// Parameter is a closed enum indexing the fee table. Adding a parameter
// requires extending ParameterCount and every switch over the type.
type Parameter uint8

const (
	ParameterSwapFeeNumerator Parameter = iota
	ParameterSwapFeeDenominator

	ParameterCount
)

// MaxCollectors is the fee-collector allowlist capacity.
const MaxCollectors = 16

const (
	// Flat base cost charged per transaction.
	baseTransactionFee = 5000

	// Compute unit price is expressed in micro-lamports.
	computePriceDivisor = 1_000_000
)

var (
	ErrInvalidFeeValue       = errors.New("invalid fee value")
	ErrCollectorLimitReached = errors.New("fee collector limit reached")
	ErrFeeOverflow           = errors.New("fee computation overflow")
)

type Record struct {
	Id uint64

	Address string

	Fees [ParameterCount]uint64

	// Bounded allowlist of fee collector destinations.
	Collectors []string

	Version uint64

	CreatedAt time.Time
}

// SetFee updates a fee parameter. A zero swap fee denominator is rejected.
// The numerator intentionally has no upper bound relative to the
// denominator; the authority is trusted to configure a sane ratio.
func (r *Record) SetFee(parameter Parameter, value uint64) error {
	switch parameter {
	case ParameterSwapFeeNumerator:
	case ParameterSwapFeeDenominator:
		if value == 0 {
			return ErrInvalidFeeValue
		}
	default:
		return ErrInvalidFeeValue
	}

	r.Fees[parameter] = value
	return nil
}

func (r *Record) GetFee(parameter Parameter) uint64 {
	if parameter >= ParameterCount {
		return 0
	}
	return r.Fees[parameter]
}

// AddCollector adds a collector to the allowlist. Re-adding an existing
// collector is a silent no-op.
func (r *Record) AddCollector(collector string) error {
	if r.HasCollector(collector) {
		return nil
	}

	if len(r.Collectors) >= MaxCollectors {
		return ErrCollectorLimitReached
	}

	r.Collectors = append(r.Collectors, collector)
	return nil
}

// RemoveCollector removes a collector from the allowlist. Removing an
// absent collector is a silent no-op.
func (r *Record) RemoveCollector(collector string) {
	for i, existing := range r.Collectors {
		if existing == collector {
			r.Collectors = append(r.Collectors[:i], r.Collectors[i+1:]...)
			return
		}
	}
}

func (r *Record) HasCollector(collector string) bool {
	for _, existing := range r.Collectors {
		if existing == collector {
			return true
		}
	}
	return false
}

// ComputeSwapFee computes the fee owed for a swap that moved the monitored
// balance from before to after. The fee is charged on the absolute delta
// regardless of direction, with 128-bit intermediate math and floor
// division.
func (r *Record) ComputeSwapFee(before, after uint64) (uint64, error) {
	numerator := r.Fees[ParameterSwapFeeNumerator]
	denominator := r.Fees[ParameterSwapFeeDenominator]

	if denominator == 0 {
		return 0, ErrInvalidFeeValue
	}

	var delta uint64
	if after > before {
		delta = after - before
	} else {
		delta = before - after
	}

	hi, lo := bits.Mul64(delta, numerator)
	if hi >= denominator {
		return 0, ErrFeeOverflow
	}

	quo, _ := bits.Div64(hi, lo, denominator)
	return quo, nil
}

// ComputeTransactionFee computes the flat base cost plus the prioritization
// cost declared by the compute budget directives, rounding the scaled price
// component up.
func ComputeTransactionFee(computeUnitLimit uint32, computeUnitPrice uint64) (uint64, error) {
	hi, lo := bits.Mul64(uint64(computeUnitLimit), computeUnitPrice)
	if hi >= computePriceDivisor {
		return 0, ErrFeeOverflow
	}

	quo, rem := bits.Div64(hi, lo, computePriceDivisor)
	if rem > 0 {
		if quo == math.MaxUint64 {
			return 0, ErrFeeOverflow
		}
		quo++
	}

	if quo > math.MaxUint64-baseTransactionFee {
		return 0, ErrFeeOverflow
	}

	return baseTransactionFee + quo, nil
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Address: r.Address,

		Fees: r.Fees,

		Collectors: cloneCollectors(r.Collectors),

		Version: r.Version,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Address = r.Address

	dst.Fees = r.Fees

	dst.Collectors = cloneCollectors(r.Collectors)

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
}

func (r *Record) Validate() error {
	if len(r.Address) == 0 {
		return errors.New("address is required")
	}

	if r.Fees[ParameterSwapFeeDenominator] == 0 {
		return errors.New("swap fee denominator is zero")
	}

	if len(r.Collectors) > MaxCollectors {
		return errors.New("collector count exceeds limit")
	}

	seen := make(map[string]struct{}, len(r.Collectors))
	for _, collector := range r.Collectors {
		if len(collector) == 0 {
			return errors.New("collector is empty")
		}
		if _, ok := seen[collector]; ok {
			return errors.New("collector is duplicated")
		}
		seen[collector] = struct{}{}
	}

	return nil
}

func (p Parameter) String() string {
	switch p {
	case ParameterSwapFeeNumerator:
		return "swap_fee_numerator"
	case ParameterSwapFeeDenominator:
		return "swap_fee_denominator"
	}
	return "unknown"
}

func cloneCollectors(collectors []string) []string {
	if collectors == nil {
		return nil
	}

	cloned := make([]string, len(collectors))
	copy(cloned, collectors)
	return cloned
}
