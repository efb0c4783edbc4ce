package utils

import "testing"

func TestStrSliceHas(t *testing.T) {
	tests := []struct {
		name  string
		slice []string
		item  string
		want  bool
	}{
		{"match", []string{"iPhone11,8", "iPhone12,1"}, "iPhone12,1", true},
		{"case insensitive", []string{"iPhone11,8"}, "iphone11,8", true},
		{"no match", []string{"iPhone11,8"}, "iPhone11", false},
		{"empty", nil, "iPhone11,8", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StrSliceHas(tt.slice, tt.item); got != tt.want {
				t.Errorf("StrSliceHas() = %v, want %v", got, tt.want)
			}
		})
	}
}
