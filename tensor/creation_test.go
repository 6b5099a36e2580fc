package tensor

import (
	"reflect"
	"testing"

	"github.com/chewxy/math32"
)

func TestNewTensor(t *testing.T) {
	t.Run("valid float32 data", func(t *testing.T) {
		tensor, err := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3, 4, 5, 6})
		if err != nil {
			t.Fatalf("NewTensor failed: %v", err)
		}
		if tensor.NumElems != 6 {
			t.Errorf("NumElems = %d, expected 6", tensor.NumElems)
		}
		if !reflect.DeepEqual(tensor.Strides, []int{3, 1}) {
			t.Errorf("Strides = %v, expected [3 1]", tensor.Strides)
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		if _, err := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3}); err == nil {
			t.Error("Expected error for data length mismatch")
		}
	})

	t.Run("invalid shape", func(t *testing.T) {
		if _, err := NewTensor([]int{2, 0}, Float32, nil); err == nil {
			t.Error("Expected error for zero dimension")
		}
	})

	t.Run("shape is copied", func(t *testing.T) {
		shape := []int{2, 2}
		tensor, _ := Zeros(shape, Float32)
		shape[0] = 5
		if tensor.Shape[0] != 2 {
			t.Errorf("tensor shape aliased caller slice: %v", tensor.Shape)
		}
	})
}

func TestOnesAndFull(t *testing.T) {
	ones, err := Ones([]int{2}, Float32)
	if err != nil {
		t.Fatalf("Ones failed: %v", err)
	}
	if !reflect.DeepEqual(ones.Data.([]float32), []float32{1, 1}) {
		t.Errorf("Ones = %v", ones.Data)
	}

	full, err := Full([]int{3}, int32(7), Int32)
	if err != nil {
		t.Fatalf("Full failed: %v", err)
	}
	if !reflect.DeepEqual(full.Data.([]int32), []int32{7, 7, 7}) {
		t.Errorf("Full = %v", full.Data)
	}
}

func TestEyeLike(t *testing.T) {
	ref, _ := Zeros([]int{2, 3, 5}, Float32)

	eye, err := EyeLike(ref, 3)
	if err != nil {
		t.Fatalf("EyeLike failed: %v", err)
	}
	if !reflect.DeepEqual(eye.Shape, []int{2, 3, 3}) {
		t.Errorf("EyeLike shape = %v, expected [2 3 3]", eye.Shape)
	}
	data := eye.Data.([]float32)
	for b := 0; b < 2; b++ {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				v := data[b*9+i*3+j]
				want := float32(0)
				if i == j {
					want = 1
				}
				if v != want {
					t.Errorf("EyeLike[%d][%d][%d] = %v, expected %v", b, i, j, v, want)
				}
			}
		}
	}
}

func TestGlorotUniformBounds(t *testing.T) {
	rng := NewRand(42)
	w, err := GlorotUniform([]int{4, 2}, rng)
	if err != nil {
		t.Fatalf("GlorotUniform failed: %v", err)
	}

	limit := math32.Sqrt(6.0 / 6.0)
	for i, v := range w.Data.([]float32) {
		if v < -limit || v > limit {
			t.Errorf("element %d = %v outside [-%v, %v]", i, v, limit, limit)
		}
	}

	if _, err := GlorotUniform([]int{2, 2, 2}, rng); err == nil {
		t.Error("Expected error for non-2D glorot shape")
	}
}

func TestGlorotNormalTruncation(t *testing.T) {
	w, err := GlorotNormal([]int{8, 8}, NewRand(7))
	if err != nil {
		t.Fatalf("GlorotNormal failed: %v", err)
	}

	std := math32.Sqrt(2.0/16.0) / 0.87962566
	for i, v := range w.Data.([]float32) {
		if math32.Abs(v) > 2*std+1e-6 {
			t.Errorf("element %d = %v beyond two standard deviations", i, v)
		}
	}
}

func TestRandomUniformDeterministic(t *testing.T) {
	a, _ := RandomUniform([]int{3, 3}, -0.05, 0.05, NewRand(1))
	b, _ := RandomUniform([]int{3, 3}, -0.05, 0.05, NewRand(1))
	if equal, _ := a.Equal(b); !equal {
		t.Error("Expected identical draws for identical seeds")
	}

	z1, _ := RandomUniform([]int{3, 3}, -0.05, 0.05, NewRand(0))
	z2, _ := RandomUniform([]int{3, 3}, -0.05, 0.05, NewRand(0))
	if equal, _ := z1.Equal(z2); !equal {
		t.Error("Expected seed 0 to be deterministic")
	}

	if _, err := RandomUniform([]int{2}, 1, 0, nil); err == nil {
		t.Error("Expected error when max is below min")
	}
}
