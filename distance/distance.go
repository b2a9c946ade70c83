package distance

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

var (
	// ErrUnsupportedMetric is returned for an unknown similarity metric.
	ErrUnsupportedMetric = errors.New("unsupported similarity metric")

	// ErrLengthMismatch is returned when two vectors differ in length.
	ErrLengthMismatch = errors.New("vectors must have the same length")
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	return math.Sqrt(Dot(v, v))
}

// Cosine returns the cosine similarity of a and b.
// It returns 0 if either vector has zero norm and never fails.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	a, b = a[:n], b[:n]

	normA := Norm(a)
	normB := Norm(b)
	if normA == 0 || normB == 0 {
		return 0
	}
	return Dot(a, b) / (normA * normB)
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Euclidean returns the euclidean-derived similarity 1 / (1 + distance).
func Euclidean(a, b []float32) (float64, error) {
	d, err := EuclideanDistance(a, b)
	if err != nil {
		return 0, err
	}
	return 1.0 / (1.0 + d), nil
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm := Norm(v)
	if norm == 0 {
		return false
	}
	inv := 1 / norm
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm; a zero vector is unindexable,
// not an error.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}

// Metric identifies the similarity function used to rank search results.
type Metric int

const (
	MetricCosine Metric = iota
	MetricEuclidean
	MetricDotProduct
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricEuclidean:
		return "euclidean"
	case MetricDotProduct:
		return "dot_product"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMetric parses the wire name of a metric. The empty string selects cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return MetricCosine, nil
	case "euclidean":
		return MetricEuclidean, nil
	case "dot_product":
		return MetricDotProduct, nil
	default:
		return 0, fmt.Errorf("%w: %q (supported: cosine, euclidean, dot_product)", ErrUnsupportedMetric, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if _, err := Provider(m); err != nil {
		return nil, err
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Func is a similarity function. Higher scores mean more similar.
type Func func(a, b []float32) (float64, error)

// Provider returns the similarity function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return func(a, b []float32) (float64, error) {
			if len(a) != len(b) {
				return 0, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(a), len(b))
			}
			return Cosine(a, b), nil
		}, nil
	case MetricEuclidean:
		return Euclidean, nil
	case MetricDotProduct:
		return func(a, b []float32) (float64, error) {
			if len(a) != len(b) {
				return 0, fmt.Errorf("%w: %d != %d", ErrLengthMismatch, len(a), len(b))
			}
			return Dot(a, b), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMetric, m)
	}
}
