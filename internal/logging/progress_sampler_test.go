package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
		})
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "3") {
		t.Error("nil sampler should always log")
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(0, "21") {
		t.Fatal("first event should log")
	}
	if s.ShouldLog(5, "21") {
		t.Fatal("same bucket should not log")
	}
	if !s.ShouldLog(12, "21") {
		t.Fatal("crossing bucket should log")
	}
	if !s.ShouldLog(12, "22") {
		t.Fatal("node change should log")
	}
	if !s.ShouldLog(100, "22") {
		t.Fatal("completion should log")
	}
	if s.ShouldLog(100, "22") {
		t.Fatal("repeated completion should not log")
	}
}
