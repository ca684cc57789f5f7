package queue

import (
	"reflect"
	"testing"
)

func TestAccumulatorEmpty(t *testing.T) {
	a := NewAccumulator()
	if a.Kind() != KindEmpty {
		t.Errorf("fresh accumulator kind = %v, want KindEmpty", a.Kind())
	}
	if a.Value() != nil {
		t.Errorf("fresh accumulator value = %v, want nil", a.Value())
	}
	if a.Len() != 0 {
		t.Errorf("fresh accumulator len = %d, want 0", a.Len())
	}
}

func TestAccumulatorScalarThenList(t *testing.T) {
	a := NewAccumulator()

	a.Merge("", 1)
	if a.Kind() != KindScalar {
		t.Fatalf("after one merge kind = %v, want KindScalar", a.Kind())
	}
	if a.Value() != 1 {
		t.Fatalf("scalar value = %v, want 1", a.Value())
	}

	a.Merge("", 2)
	if a.Kind() != KindList {
		t.Fatalf("after two merges kind = %v, want KindList", a.Kind())
	}
	want := []interface{}{1, 2}
	if !reflect.DeepEqual(a.Value(), want) {
		t.Errorf("list value = %v, want %v", a.Value(), want)
	}

	a.Merge("", 3)
	want = []interface{}{1, 2, 3}
	if !reflect.DeepEqual(a.Value(), want) {
		t.Errorf("list value = %v, want %v", a.Value(), want)
	}
}

func TestAccumulatorKeyedMergePromotesToMap(t *testing.T) {
	a := NewAccumulator()
	a.Merge("", "first")
	a.Merge("", "second")
	a.Merge("status", "ok")

	if a.Kind() != KindMap {
		t.Fatalf("kind = %v, want KindMap", a.Kind())
	}
	want := map[string]interface{}{"0": "first", "1": "second", "status": "ok"}
	if !reflect.DeepEqual(a.Value(), want) {
		t.Errorf("map value = %v, want %v", a.Value(), want)
	}
}

func TestAccumulatorScalarPromotesToMap(t *testing.T) {
	a := NewAccumulator()
	a.Merge("", 42)
	a.Merge("named", true)

	want := map[string]interface{}{"0": 42, "named": true}
	if !reflect.DeepEqual(a.Value(), want) {
		t.Errorf("map value = %v, want %v", a.Value(), want)
	}
}

func TestAccumulatorUnkeyedAfterMapKeepsPosition(t *testing.T) {
	a := NewAccumulator()
	a.Merge("", "a")
	a.Merge("", "b")
	a.Merge("k", "c")
	a.Merge("", "d") // positional index continues past the re-keyed values

	want := map[string]interface{}{"0": "a", "1": "b", "k": "c", "2": "d"}
	if !reflect.DeepEqual(a.Value(), want) {
		t.Errorf("map value = %v, want %v", a.Value(), want)
	}
	if a.Len() != 4 {
		t.Errorf("len = %d, want 4", a.Len())
	}
}

func TestAccumulatorFirstMergeKeyed(t *testing.T) {
	a := NewAccumulator()
	a.Merge("only", 7)

	if a.Kind() != KindMap {
		t.Fatalf("kind = %v, want KindMap", a.Kind())
	}
	want := map[string]interface{}{"only": 7}
	if !reflect.DeepEqual(a.Value(), want) {
		t.Errorf("map value = %v, want %v", a.Value(), want)
	}
}

func TestAccumulatorValueCopies(t *testing.T) {
	a := NewAccumulator()
	a.Merge("", 1)
	a.Merge("", 2)

	list := a.Value().([]interface{})
	list[0] = 99
	if got := a.Value().([]interface{})[0]; got != 1 {
		t.Errorf("mutating a returned list leaked into the accumulator: %v", got)
	}
}

func TestAccumulatorDuplicateKeyReplacesWithoutDoubleCount(t *testing.T) {
	a := NewAccumulator()
	a.Merge("k", 1)
	a.Merge("k", 2)

	if a.Len() != 1 {
		t.Errorf("len = %d, want 1 after replacing a key", a.Len())
	}
	want := map[string]interface{}{"k": 2}
	if !reflect.DeepEqual(a.Value(), want) {
		t.Errorf("value = %v, want %v", a.Value(), want)
	}
}
