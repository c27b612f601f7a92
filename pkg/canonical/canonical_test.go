package canonical

import "testing"

func TestMarshalSortsKeys(t *testing.T) {
	v := map[string]interface{}{"b": 1, "a": 2, "c": map[string]interface{}{"z": 1, "y": 2}}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":2,"b":1,"c":{"y":2,"z":1}}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	type payload struct {
		Z int `json:"z"`
		A int `json:"a"`
	}
	a, err := Marshal(payload{Z: 1, A: 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := Marshal(payload{Z: 1, A: 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("non-deterministic output: %s vs %s", a, b)
	}
	if string(a) != `{"a":2,"z":1}` {
		t.Fatalf("got %s", a)
	}
}

func TestMarshalArraysPreserveOrder(t *testing.T) {
	v := []interface{}{3, 1, 2}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != "[3,1,2]" {
		t.Fatalf("got %s", got)
	}
}
