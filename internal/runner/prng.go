package runner

import "strconv"

// PRNG yields pseudo-random numbers in [0, 1).
type PRNG interface {
	Next() float64
}

// PRNGFactory builds the generator used for seeded queue insertion.
type PRNGFactory func(seed string) PRNG

// xorshift32 is the default seeded generator.
type xorshift32 struct {
	state uint32
}

// NewSeededPRNG returns an xorshift32 generator seeded from the string hash
// of seed. The same seed always yields the same sequence.
func NewSeededPRNG(seed string) PRNG {
	v, err := strconv.ParseUint(hashName(seed), 16, 32)
	if err != nil || v == 0 {
		// xorshift has a fixed point at zero.
		v = 0xffffffff
	}
	return &xorshift32{state: uint32(v)}
}

func (x *xorshift32) Next() float64 {
	t := x.state
	t ^= t << 13
	t ^= t >> 17
	t ^= t << 5
	x.state = t
	return float64(t) / 4294967296
}
