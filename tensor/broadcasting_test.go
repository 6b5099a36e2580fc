package tensor

import (
	"reflect"
	"testing"
)

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name        string
		shape1      []int
		shape2      []int
		expected    []int
		expectError bool
	}{
		{"identical", []int{2, 3}, []int{2, 3}, []int{2, 3}, false},
		{"leading batch", []int{4, 3, 2}, []int{3, 2}, []int{4, 3, 2}, false},
		{"size one", []int{3, 1}, []int{1, 4}, []int{3, 4}, false},
		{"scalar", []int{}, []int{2, 2}, []int{2, 2}, false},
		{"incompatible", []int{2, 3}, []int{3, 2}, nil, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result, err := BroadcastShapes(test.shape1, test.shape2)
			if test.expectError {
				if err == nil {
					t.Errorf("Expected error for %v and %v", test.shape1, test.shape2)
				}
				return
			}
			if err != nil {
				t.Fatalf("BroadcastShapes failed: %v", err)
			}
			if !reflect.DeepEqual(result, test.expected) {
				t.Errorf("BroadcastShapes(%v, %v) = %v, expected %v", test.shape1, test.shape2, result, test.expected)
			}
		})
	}
}

func TestBroadcastTensor(t *testing.T) {
	bias, _ := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})

	result, err := BroadcastTensor(bias, []int{2, 2, 2})
	if err != nil {
		t.Fatalf("BroadcastTensor failed: %v", err)
	}
	expected := []float32{1, 2, 3, 4, 1, 2, 3, 4}
	if !reflect.DeepEqual(result.Data.([]float32), expected) {
		t.Errorf("BroadcastTensor = %v, expected %v", result.Data, expected)
	}

	column, _ := NewTensor([]int{2, 1}, Float32, []float32{5, 6})
	result, err = BroadcastTensor(column, []int{2, 3})
	if err != nil {
		t.Fatalf("BroadcastTensor failed: %v", err)
	}
	expected = []float32{5, 5, 5, 6, 6, 6}
	if !reflect.DeepEqual(result.Data.([]float32), expected) {
		t.Errorf("BroadcastTensor = %v, expected %v", result.Data, expected)
	}

	if _, err := BroadcastTensor(result, []int{3}); err == nil {
		t.Error("Expected error broadcasting to a smaller shape")
	}
}
