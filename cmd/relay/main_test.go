package main

import (
	"reflect"
	"testing"
)

func TestParseData(t *testing.T) {
	tests := []struct {
		arg  string
		want any
	}{
		{`{"a":1}`, map[string]any{"a": float64(1)}},
		{`[1,"x"]`, []any{float64(1), "x"}},
		{`12.5`, 12.5},
		{`"quoted"`, "quoted"},
		{`true`, true},
		{`hello world`, "hello world"},
		{`{broken`, "{broken"},
		{``, ""},
	}
	for _, tt := range tests {
		if got := parseData(tt.arg); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseData(%q) = %#v, want %#v", tt.arg, got, tt.want)
		}
	}
}
