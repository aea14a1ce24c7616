package gridrl

import (
	"fmt"

	"github.com/unixpickle/anyvec"
)

// Float64s returns the components of a vector.
//
// For float64 vectors, the result aliases the vector's
// data and must not be modified.
func Float64s(vec anyvec.Vector) []float64 {
	switch data := vec.Data().(type) {
	case []float32:
		res := make([]float64, len(data))
		for i, x := range data {
			res[i] = float64(x)
		}
		return res
	case []float64:
		return data
	default:
		panic(fmt.Sprintf("unsupported numeric type: %T", data))
	}
}

// MakeVector creates a vector from float64 components.
func MakeVector(c anyvec.Creator, data []float64) anyvec.Vector {
	return c.MakeVectorData(c.MakeNumericList(data))
}
