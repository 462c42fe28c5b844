// Package band implements the packed block-tridiagonal storage used by the
// dual-Newton QP driver for its Newton Hessian and Cholesky factor.
//
// A Band holds N block-rows of a symmetric block-tridiagonal matrix of
// block size nx. Only the lower band is stored: for each block-row the
// diagonal block and the sub-diagonal block (absent for row 0). The
// super-diagonal is never materialized; callers that need it read the
// transpose of the corresponding sub-diagonal block. This mirrors the
// storage-by-offset approach of mat.BandDense, specialized to the
// block-tridiagonal shape qpdual's Newton system always has.
package band

import "gonum.org/v1/gonum/mat"

// Band is a packed arena of N*2*nx*nx float64s addressed by the tuple
// (block-row, column-offset, in-block row, in-block column), where
// column-offset is -1 (sub-diagonal) or 0 (diagonal).
type Band struct {
	n    int // number of block-rows
	nx   int // block size
	data []float64
}

// New allocates a Band with n block-rows of size nx, zero-initialized.
func New(n, nx int) *Band {
	if n <= 0 || nx <= 0 {
		panic("band: non-positive dimension")
	}
	return &Band{n: n, nx: nx, data: make([]float64, n*2*nx*nx)}
}

// N returns the number of block-rows.
func (b *Band) N() int { return b.n }

// Nx returns the block size.
func (b *Band) Nx() int { return b.nx }

func (b *Band) blockBase(row, off int) int {
	if row < 0 || row >= b.n {
		panic("band: row out of range")
	}
	if off != -1 && off != 0 {
		panic("band: offset must be -1 or 0")
	}
	if off == -1 && row == 0 {
		panic("band: row 0 has no sub-diagonal block")
	}
	return (row*2 + (off + 1)) * b.nx * b.nx
}

// At returns the (i,j) entry of the block at (row, off).
func (b *Band) At(row, off, i, j int) float64 {
	base := b.blockBase(row, off)
	return b.data[base+i*b.nx+j]
}

// Set assigns the (i,j) entry of the block at (row, off).
func (b *Band) Set(row, off, i, j int, v float64) {
	base := b.blockBase(row, off)
	b.data[base+i*b.nx+j] = v
}

// Diag returns a mutable row-major view of the diagonal block at row.
func (b *Band) Diag(row int) []float64 {
	base := b.blockBase(row, 0)
	return b.data[base : base+b.nx*b.nx]
}

// Sub returns a mutable row-major view of the sub-diagonal block at row.
// Row must be >= 1.
func (b *Band) Sub(row int) []float64 {
	base := b.blockBase(row, -1)
	return b.data[base : base+b.nx*b.nx]
}

// HasSub reports whether block-row has a sub-diagonal block.
func (b *Band) HasSub(row int) bool { return row >= 1 }

// SetDiagFrom copies the contents of m (nx x nx) into the diagonal block
// at row.
func (b *Band) SetDiagFrom(row int, m *mat.Dense) {
	r, c := m.Dims()
	if r != b.nx || c != b.nx {
		panic("band: dimension mismatch")
	}
	dst := b.Diag(row)
	for i := 0; i < b.nx; i++ {
		for j := 0; j < b.nx; j++ {
			dst[i*b.nx+j] = m.At(i, j)
		}
	}
}

// SetSubFrom copies the contents of m (nx x nx) into the sub-diagonal
// block at row.
func (b *Band) SetSubFrom(row int, m *mat.Dense) {
	r, c := m.Dims()
	if r != b.nx || c != b.nx {
		panic("band: dimension mismatch")
	}
	dst := b.Sub(row)
	for i := 0; i < b.nx; i++ {
		for j := 0; j < b.nx; j++ {
			dst[i*b.nx+j] = m.At(i, j)
		}
	}
}

// Reset zeroes every stored entry.
func (b *Band) Reset() {
	for i := range b.data {
		b.data[i] = 0
	}
}

// Clone returns a deep copy of b.
func (b *Band) Clone() *Band {
	out := &Band{n: b.n, nx: b.nx, data: make([]float64, len(b.data))}
	copy(out.data, b.data)
	return out
}

// Equal reports whether a and b hold bitwise-identical entries. Used by
// the Newton-setup block-reuse test (spec.md invariant 4): rebuilding an
// unchanged block must reproduce the same bits, not merely equal values.
func Equal(a, b *Band) bool {
	if a.n != b.n || a.nx != b.nx {
		return false
	}
	for i := range a.data {
		if a.data[i] != b.data[i] {
			return false
		}
	}
	return true
}
