package landmarks

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestFrame_Validate(t *testing.T) {
	nan := Synthetic{}.Frame()
	nan.Points[5].X = math.NaN()

	tests := []struct {
		name    string
		frame   Frame
		wantErr error
	}{
		{name: "neutral synthetic", frame: Synthetic{}.Frame()},
		{name: "empty", frame: Frame{}, wantErr: ErrTooFewPoints},
		{name: "short", frame: Frame{Points: make([]Point, 100)}, wantErr: ErrTooFewPoints},
		{name: "all zero", frame: Frame{Points: make([]Point, MinPoints)}, wantErr: ErrDegenerate},
		{name: "nan", frame: nan, wantErr: ErrNonFinite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frame.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFrame_CloneIsIndependent(t *testing.T) {
	f := Synthetic{}.Frame()
	c := f.Clone()
	c.Points[0].X = 42

	if f.Points[0].X == 42 {
		t.Error("Clone shares the points buffer")
	}
}

func TestSynthetic_TiltRotatesEyeLine(t *testing.T) {
	f := Synthetic{Tilt: 0.2}.Frame()
	r, l := f.At(RightEyeOut), f.At(LeftEyeOut)

	got := math.Atan2(l.Y-r.Y, l.X-r.X)
	if math.Abs(got-0.2) > 1e-9 {
		t.Errorf("Expected eye line angle 0.2, got %v", got)
	}
}

func TestStreamDetector(t *testing.T) {
	s := NewStreamDetector(100 * time.Millisecond)
	now := time.Now()
	s.now = func() time.Time { return now }

	ctx := context.Background()
	if _, err := s.Detect(ctx, nil); !errors.Is(err, ErrModelNotReady) {
		t.Errorf("Expected ErrModelNotReady before first push, got %v", err)
	}

	s.Push(Synthetic{}.Frame())
	f, err := s.Detect(ctx, nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if f.Len() != MinPoints {
		t.Errorf("Expected %d points, got %d", MinPoints, f.Len())
	}

	now = now.Add(200 * time.Millisecond)
	if _, err := s.Detect(ctx, nil); !errors.Is(err, ErrNoFace) {
		t.Errorf("Expected ErrNoFace for stale frame, got %v", err)
	}
	if !IsMiss(ErrNoFace) || IsMiss(errors.New("boom")) {
		t.Error("IsMiss classification wrong")
	}
}
