package main

import (
	"reflect"
	"testing"
)

func TestParseIDs(t *testing.T) {
	got, err := parseIDs([]string{"3", "1,2", " 7 , ", ""})
	if err != nil {
		t.Fatalf("parseIDs: %v", err)
	}
	want := []int64{3, 1, 2, 7}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseIDs = %v, want %v", got, want)
	}

	if _, err := parseIDs([]string{"12x"}); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}
