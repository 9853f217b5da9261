// Package mt19937 implements the 32-bit Mersenne Twister generator used as
// the keystream source for the classic pack payload cipher.
package mt19937

const (
	n         = 624
	m         = 397
	matrixA   = 0x9908b0df
	upperMask = 0x80000000
	lowerMask = 0x7fffffff
)

// Source generates the MT19937 sequence for a given seed.
type Source struct {
	state [n]uint32
	index int
}

// New returns a Source seeded with the standard init_genrand scheme.
func New(seed uint32) *Source {
	s := &Source{index: n}
	s.state[0] = seed
	for i := uint32(1); i < n; i++ {
		prev := s.state[i-1]
		s.state[i] = 1812433253*(prev^(prev>>30)) + i
	}
	return s
}

// Uint32 returns the next tempered output word.
func (s *Source) Uint32() uint32 {
	if s.index >= n {
		s.generate()
	}
	y := s.state[s.index]
	s.index++

	y ^= y >> 11
	y ^= (y << 7) & 0x9d2c5680
	y ^= (y << 15) & 0xefc60000
	y ^= y >> 18
	return y
}

func (s *Source) generate() {
	for i := 0; i < n; i++ {
		y := (s.state[i] & upperMask) | (s.state[(i+1)%n] & lowerMask)
		next := s.state[(i+m)%n] ^ (y >> 1)
		if y&1 != 0 {
			next ^= matrixA
		}
		s.state[i] = next
	}
	s.index = 0
}

// XORKeyStream XORs src with the keystream into dst. One output word is
// consumed per byte; only its low byte is used, matching the original tool.
// dst and src may overlap exactly.
func (s *Source) XORKeyStream(dst, src []byte) {
	for i, b := range src {
		dst[i] = b ^ byte(s.Uint32())
	}
}
