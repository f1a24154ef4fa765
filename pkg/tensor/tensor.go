// Package tensor provides basic tensor operations for the Evolved Transformer
// implementation. This is a simplified implementation focused on the needs of
// sequence-to-sequence transformer models: batched matrix products, softmax,
// broadcasting arithmetic, and the pad-to-width operation the evolved cells
// use to reconcile branches of different channel counts.
package tensor

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Tensor represents a multi-dimensional array of float64 values.
// It stores data in a flat slice with shape information for indexing.
type Tensor struct {
	Data    []float64 // Flattened data storage
	Shape   []int     // Dimensions (e.g., [batch, seq, dim])
	Strides []int     // Precomputed strides for indexing
}

// NewTensor creates a new tensor with the given shape, initialized to zeros.
func NewTensor(shape []int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}

	return &Tensor{
		Data:    make([]float64, size),
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}
}

// FromSlice creates a tensor from existing data with the given shape.
// Returns an error if data size doesn't match the shape.
func FromSlice(data []float64, shape []int) (*Tensor, error) {
	expectedSize := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, shape)
		}
		expectedSize *= dim
	}
	if len(data) != expectedSize {
		return nil, fmt.Errorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, expectedSize)
	}

	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)

	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}, nil
}

// FromInts creates a 2D tensor of token ids from a batch of integer sequences.
// All rows must have the same length.
func FromInts(ids [][]int) (*Tensor, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("cannot build a tensor from an empty batch")
	}
	seqLen := len(ids[0])
	data := make([]float64, 0, len(ids)*seqLen)
	for i, row := range ids {
		if len(row) != seqLen {
			return nil, fmt.Errorf("ragged batch: row %d has length %d, expected %d", i, len(row), seqLen)
		}
		for _, id := range row {
			data = append(data, float64(id))
		}
	}
	return FromSlice(data, []int{len(ids), seqLen})
}

// View returns a new tensor with a different shape but sharing the same underlying data.
// Returns an error if total size doesn't match.
func (t *Tensor) View(newShape []int) (*Tensor, error) {
	newSize := 1
	for _, dim := range newShape {
		if dim < 0 {
			return nil, fmt.Errorf("invalid dimension %d in shape %v", dim, newShape)
		}
		newSize *= dim
	}

	if newSize != len(t.Data) {
		return nil, fmt.Errorf("cannot view tensor of size %d as shape %v (total size %d)",
			len(t.Data), newShape, newSize)
	}

	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(newShape),
		Strides: computeStrides(newShape),
	}, nil
}

// Reshape returns a view with a different shape (same underlying data).
// Panics if the total size doesn't match; use View for the error-returning form.
func (t *Tensor) Reshape(newShape []int) *Tensor {
	result, err := t.View(newShape)
	if err != nil {
		panic(err)
	}
	return result
}

// Transpose exchanges two dimensions of the tensor.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if dim1 < 0 || dim1 >= len(t.Shape) || dim2 < 0 || dim2 >= len(t.Shape) {
		return nil, fmt.Errorf("invalid transpose dimensions %d and %d for tensor with %d dimensions",
			dim1, dim2, len(t.Shape))
	}

	if dim1 == dim2 {
		return t.Clone(), nil
	}

	newShape := copyShape(t.Shape)
	newShape[dim1], newShape[dim2] = newShape[dim2], newShape[dim1]

	result := NewTensor(newShape)

	// Iterate over source indices and scatter into the swapped layout.
	srcIndices := make([]int, len(t.Shape))
	dstIndices := make([]int, len(t.Shape))
	var transposeRec func(pos int)
	transposeRec = func(pos int) {
		if pos == len(t.Shape) {
			copy(dstIndices, srcIndices)
			dstIndices[dim1], dstIndices[dim2] = dstIndices[dim2], dstIndices[dim1]
			result.Data[result.FlatIndex(dstIndices)] = t.Data[t.FlatIndex(srcIndices)]
			return
		}
		for i := 0; i < t.Shape[pos]; i++ {
			srcIndices[pos] = i
			transposeRec(pos + 1)
		}
	}
	transposeRec(0)

	return result, nil
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	size := 1
	for _, dim := range t.Shape {
		size *= dim
	}
	return size
}

// NumDims returns the number of dimensions (rank) of the tensor.
func (t *Tensor) NumDims() int {
	return len(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat index.
func (t *Tensor) FlatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("indices length %d does not match shape dimensions %d",
			len(indices), len(t.Shape)))
	}

	idx := 0
	for i := 0; i < len(t.Shape); i++ {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d",
				indices[i], i, t.Shape[i]))
		}
		idx += indices[i] * t.Strides[i]
	}
	return idx
}

// Get retrieves a value at the specified indices.
func (t *Tensor) Get(indices []int) float64 {
	return t.Data[t.FlatIndex(indices)]
}

// Set sets a value at the specified indices.
func (t *Tensor) Set(indices []int, value float64) {
	t.Data[t.FlatIndex(indices)] = value
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	result := NewTensor(t.Shape)
	copy(result.Data, t.Data)
	return result
}

// SliceN extracts a sub-tensor from the given ranges for all dimensions.
func (t *Tensor) SliceN(starts, ends []int) (*Tensor, error) {
	if len(starts) != len(t.Shape) || len(ends) != len(t.Shape) {
		return nil, fmt.Errorf("starts and ends must have same length as tensor dimensions (%d), got %d and %d",
			len(t.Shape), len(starts), len(ends))
	}

	newShape := make([]int, len(t.Shape))
	for i := 0; i < len(t.Shape); i++ {
		if starts[i] < 0 || starts[i] > t.Shape[i] {
			return nil, fmt.Errorf("invalid start index %d for dimension %d with size %d", starts[i], i, t.Shape[i])
		}
		if ends[i] < starts[i] || ends[i] > t.Shape[i] {
			return nil, fmt.Errorf("invalid end index %d for dimension %d (start=%d, size=%d)", ends[i], i, starts[i], t.Shape[i])
		}
		newShape[i] = ends[i] - starts[i]
	}

	result := NewTensor(newShape)

	srcIndices := make([]int, len(t.Shape))
	dstIndices := make([]int, len(t.Shape))

	var copyData func(dim int)
	copyData = func(dim int) {
		if dim == len(t.Shape) {
			result.Data[result.FlatIndex(dstIndices)] = t.Data[t.FlatIndex(srcIndices)]
			return
		}
		for i := 0; i < newShape[dim]; i++ {
			srcIndices[dim] = starts[dim] + i
			dstIndices[dim] = i
			copyData(dim + 1)
		}
	}

	copyData(0)
	return result, nil
}

// PadLast pads the last dimension of the tensor up to the given width with a
// constant fill value. The evolved cells use this to reconcile branches whose
// channel counts differ before summing them.
func (t *Tensor) PadLast(width int, fill float64) (*Tensor, error) {
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("cannot pad a scalar tensor")
	}

	lastDim := t.Shape[len(t.Shape)-1]
	if width < lastDim {
		return nil, fmt.Errorf("pad width %d is smaller than current last dimension %d", width, lastDim)
	}
	if width == lastDim {
		return t.Clone(), nil
	}

	newShape := copyShape(t.Shape)
	newShape[len(newShape)-1] = width
	result := NewTensor(newShape)

	outer := len(t.Data) / lastDim
	for i := 0; i < outer; i++ {
		srcOff := i * lastDim
		dstOff := i * width
		copy(result.Data[dstOff:dstOff+lastDim], t.Data[srcOff:srcOff+lastDim])
		for j := lastDim; j < width; j++ {
			result.Data[dstOff+j] = fill
		}
	}

	return result, nil
}

// Matmul performs matrix multiplication on the last two dimensions, backed by
// gonum's mat.Dense. For tensors of shape (..., m, n) and (..., n, p), returns
// (..., m, p). Supports broadcasting: if one operand is 2D and the other is
// 3D, the 2D operand is broadcast over the batch dimension.
func Matmul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, fmt.Errorf("matmul requires at least 2D tensors, got %dD and %dD",
			len(a.Shape), len(b.Shape))
	}

	kA := a.Shape[len(a.Shape)-1]
	kB := b.Shape[len(b.Shape)-2]
	if kA != kB {
		return nil, fmt.Errorf("incompatible shapes for matmul: %v and %v (inner dimensions %d and %d don't match)",
			a.Shape, b.Shape, kA, kB)
	}

	switch {
	case len(a.Shape) == 2 && len(b.Shape) == 2:
		m, n := a.Shape[0], a.Shape[1]
		p := b.Shape[1]
		result := NewTensor([]int{m, p})
		mulInto(result.Data, a.Data, b.Data, m, n, p)
		return result, nil

	case len(a.Shape) == 3 && len(b.Shape) == 2:
		batch, m, n := a.Shape[0], a.Shape[1], a.Shape[2]
		p := b.Shape[1]
		result := NewTensor([]int{batch, m, p})
		for bi := 0; bi < batch; bi++ {
			mulInto(result.Data[bi*m*p:(bi+1)*m*p], a.Data[bi*m*n:(bi+1)*m*n], b.Data, m, n, p)
		}
		return result, nil

	case len(a.Shape) == 2 && len(b.Shape) == 3:
		m, n := a.Shape[0], a.Shape[1]
		batch, p := b.Shape[0], b.Shape[2]
		result := NewTensor([]int{batch, m, p})
		for bi := 0; bi < batch; bi++ {
			mulInto(result.Data[bi*m*p:(bi+1)*m*p], a.Data, b.Data[bi*n*p:(bi+1)*n*p], m, n, p)
		}
		return result, nil

	default:
		return matmulBatched(a, b)
	}
}

// matmulBatched handles batched matrix multiplication where both operands
// carry identical leading batch dimensions.
func matmulBatched(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != len(b.Shape) {
		return nil, fmt.Errorf("batched matmul requires equal ranks, got shapes %v and %v", a.Shape, b.Shape)
	}
	for i := 0; i < len(a.Shape)-2; i++ {
		if a.Shape[i] != b.Shape[i] {
			return nil, fmt.Errorf("batched matmul batch dimensions differ: %v vs %v", a.Shape, b.Shape)
		}
	}

	m := a.Shape[len(a.Shape)-2]
	n := a.Shape[len(a.Shape)-1]
	p := b.Shape[len(b.Shape)-1]

	batchDims := a.Shape[:len(a.Shape)-2]
	batchSize := 1
	for _, dim := range batchDims {
		batchSize *= dim
	}

	resultShape := append([]int{}, batchDims...)
	resultShape = append(resultShape, m, p)
	result := NewTensor(resultShape)

	for batch := 0; batch < batchSize; batch++ {
		mulInto(result.Data[batch*m*p:(batch+1)*m*p],
			a.Data[batch*m*n:(batch+1)*m*n],
			b.Data[batch*n*p:(batch+1)*n*p], m, n, p)
	}

	return result, nil
}

// mulInto computes dst = a @ b for row-major (m,n) x (n,p) flat slices. The
// mat.Dense wrappers share the slices, so no copies are made.
func mulInto(dst, a, b []float64, m, n, p int) {
	out := mat.NewDense(m, p, dst)
	out.Mul(mat.NewDense(m, n, a), mat.NewDense(n, p, b))
}

// Scale multiplies all elements by a scalar.
func Scale(t *Tensor, scalar float64) *Tensor {
	result := t.Clone()
	floats.Scale(scalar, result.Data)
	return result
}

// Scale multiplies all elements by a scalar (tensor method version).
func (t *Tensor) Scale(s float64) *Tensor {
	return Scale(t, s)
}

// Softmax applies softmax along the last dimension, subtracting the row
// maximum for numerical stability.
func Softmax(t *Tensor) *Tensor {
	if len(t.Shape) == 0 {
		panic("cannot apply softmax to a scalar tensor")
	}

	lastDim := t.Shape[len(t.Shape)-1]
	result := NewTensor(t.Shape)

	for offset := 0; offset < len(t.Data); offset += lastDim {
		row := t.Data[offset : offset+lastDim]
		out := result.Data[offset : offset+lastDim]

		maxVal := floats.Max(row)
		for i, v := range row {
			out[i] = math.Exp(v - maxVal)
		}
		floats.Scale(1/floats.Sum(out), out)
	}

	return result
}

// Add performs element-wise addition with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementWiseOp(a, b, func(x, y float64) float64 { return x + y })
}

// Mul performs element-wise multiplication with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return elementWiseOp(a, b, func(x, y float64) float64 { return x * y })
}

// elementWiseOp performs an element-wise operation with broadcasting.
func elementWiseOp(a, b *Tensor, op func(float64, float64) float64) (*Tensor, error) {
	// Fast path: identical shapes.
	if a.ShapeEquals(b) {
		result := NewTensor(a.Shape)
		for i := range a.Data {
			result.Data[i] = op(a.Data[i], b.Data[i])
		}
		return result, nil
	}

	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, fmt.Errorf("cannot broadcast shapes %v and %v: %w", a.Shape, b.Shape, err)
	}

	result := NewTensor(outShape)

	indices := make([]int, len(outShape))
	var iterate func(dim int)
	iterate = func(dim int) {
		if dim == len(outShape) {
			aVal := a.Data[broadcastIndex(indices, outShape, a.Shape)]
			bVal := b.Data[broadcastIndex(indices, outShape, b.Shape)]
			result.Data[result.FlatIndex(indices)] = op(aVal, bVal)
			return
		}
		for i := 0; i < outShape[dim]; i++ {
			indices[dim] = i
			iterate(dim + 1)
		}
	}

	iterate(0)
	return result, nil
}

// broadcastShapes computes the broadcasted shape of two shapes.
func broadcastShapes(a, b []int) ([]int, error) {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	result := make([]int, maxLen)

	for i := 0; i < maxLen; i++ {
		dimA := 1
		if i < len(a) {
			dimA = a[len(a)-1-i]
		}
		dimB := 1
		if i < len(b) {
			dimB = b[len(b)-1-i]
		}

		if dimA != dimB && dimA != 1 && dimB != 1 {
			return nil, fmt.Errorf("incompatible dimensions %d and %d", dimA, dimB)
		}

		if dimA > dimB {
			result[maxLen-1-i] = dimA
		} else {
			result[maxLen-1-i] = dimB
		}
	}

	return result, nil
}

// broadcastIndex computes the flat index into a tensor of shape inShape for
// the given output position, collapsing broadcast dimensions to 0.
func broadcastIndex(outIndices []int, outShape, inShape []int) int {
	diff := len(outShape) - len(inShape)
	idx := 0
	stride := 1
	for i := len(inShape) - 1; i >= 0; i-- {
		pos := 0
		if inShape[i] == outShape[i+diff] {
			pos = outIndices[i+diff]
		}
		idx += pos * stride
		stride *= inShape[i]
	}
	return idx
}

// ShapeEquals checks if two tensors have the same shape.
func (t *Tensor) ShapeEquals(other *Tensor) bool {
	if len(t.Shape) != len(other.Shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != other.Shape[i] {
			return false
		}
	}
	return true
}

// Equals checks if two tensors have the same shape and approximately equal values.
func (t *Tensor) Equals(other *Tensor, tolerance float64) bool {
	if !t.ShapeEquals(other) {
		return false
	}
	for i := range t.Data {
		if math.Abs(t.Data[i]-other.Data[i]) > tolerance {
			return false
		}
	}
	return true
}

// String returns a string representation of the tensor.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor[")
	for i, dim := range t.Shape {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", dim)
	}
	sb.WriteString("]: ")
	sb.WriteString(t.formatData(t.Shape, t.Data, 0))
	return sb.String()
}

// formatData recursively formats tensor data, eliding long dimensions.
func (t *Tensor) formatData(shape []int, data []float64, offset int) string {
	if len(shape) == 0 {
		return fmt.Sprintf("%g", data[offset])
	}

	if len(shape) == 1 {
		var sb strings.Builder
		sb.WriteString("[")
		for i := 0; i < shape[0] && i < 6; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%g", data[offset+i])
		}
		if shape[0] > 6 {
			sb.WriteString(", ...")
		}
		sb.WriteString("]")
		return sb.String()
	}

	var sb strings.Builder
	sb.WriteString("[")
	subSize := 1
	for i := 1; i < len(shape); i++ {
		subSize *= shape[i]
	}
	for i := 0; i < shape[0] && i < 3; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.formatData(shape[1:], data, offset+i*subSize))
	}
	if shape[0] > 3 {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}

// computeStrides precomputes row-major strides for a shape.
func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// copyShape creates a copy of a shape slice.
func copyShape(shape []int) []int {
	result := make([]int, len(shape))
	copy(result, shape)
	return result
}
