package cmd

import (
	"reflect"
	"testing"
)

func TestExpandDateSpec(t *testing.T) {
	got, err := expandDateSpec("20250906-20250908")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"20250906", "20250907", "20250908"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("range: got %v", got)
	}

	got, err = expandDateSpec("20250907,20250906,20250906")
	if err != nil {
		t.Fatal(err)
	}
	want = []string{"20250906", "20250907"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("list: got %v", got)
	}

	for _, bad := range []string{"2025090", "20250908-20250906", "abc"} {
		if _, err := expandDateSpec(bad); err == nil {
			t.Fatalf("want error for %q", bad)
		}
	}
}
