package mfcc

// Matrix is a row-major coefficients x frames matrix.
type Matrix struct {
	Rows int       `json:"rows" msgpack:"rows"`
	Cols int       `json:"cols" msgpack:"cols"`
	Data []float32 `json:"data" msgpack:"data"`
}

func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

func (m *Matrix) At(r, c int) float32 {
	return m.Data[r*m.Cols+c]
}

func (m *Matrix) Set(r, c int, v float32) {
	m.Data[r*m.Cols+c] = v
}

// Column copies frame c.
func (m *Matrix) Column(c int) []float32 {
	col := make([]float32, m.Rows)
	for r := 0; r < m.Rows; r++ {
		col[r] = m.Data[r*m.Cols+c]
	}
	return col
}

// Fit returns a copy with exactly cols frames: extra frames are dropped
// from the end, missing frames are zero.
func (m *Matrix) Fit(cols int) *Matrix {
	out := NewMatrix(m.Rows, cols)
	keep := min(m.Cols, cols)
	for r := 0; r < m.Rows; r++ {
		copy(out.Data[r*cols:r*cols+keep], m.Data[r*m.Cols:r*m.Cols+keep])
	}
	return out
}

// Rows2D returns the matrix as [Rows][Cols] for JSON consumers.
func (m *Matrix) Rows2D() [][]float32 {
	out := make([][]float32, m.Rows)
	for r := range out {
		out[r] = m.Data[r*m.Cols : (r+1)*m.Cols]
	}
	return out
}

func (m *Matrix) Equal(other *Matrix) bool {
	if m.Rows != other.Rows || m.Cols != other.Cols || len(m.Data) != len(other.Data) {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}
