package geometry

import (
	"math"
	"testing"
)

func testWell() *Well {
	return &Well{
		TotalDepth: 1200,
		Hole: []HoleSection{
			{Top: 0, Bottom: 600, Diameter: 0.3},
			{Top: 600, Bottom: 1200, Diameter: 0.2159},
		},
		String: []StringComponent{
			{Name: "collar", Length: 100, OD: 0.1651, ID: 0.0714},
			{Name: "drillpipe", Length: 0, OD: 0.127, ID: 0.1086},
		},
	}
}

func TestWellValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(w *Well)
		wantErr bool
	}{
		{"valid", func(w *Well) {}, false},
		{"no hole", func(w *Well) { w.Hole = nil }, true},
		{"no string", func(w *Well) { w.String = nil }, true},
		{"ID above OD", func(w *Well) { w.String[0].ID = 0.2 }, true},
		{"inverted section", func(w *Well) { w.Hole[0].Bottom = -1 }, true},
		{"zero length collar", func(w *Well) { w.String[0].Length = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testWell()
			tt.mutate(w)
			err := w.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPositionVolumes(t *testing.T) {
	w := testWell()
	p := w.At(1000)

	collarID := circleArea(0.0714)
	pipeID := circleArea(0.1086)
	wantString := collarID*100 + pipeID*900
	if got := p.StringVolume(0, 1000); math.Abs(got-wantString) > 1e-9 {
		t.Errorf("StringVolume(0,1000) = %v, want %v", got, wantString)
	}
	if got := p.StringVolume(1000, 1100); got != 0 {
		t.Errorf("string volume below the bit = %v, want 0", got)
	}

	wantAnnulus := (circleArea(0.3)-circleArea(0.127))*600 +
		(circleArea(0.2159)-circleArea(0.127))*300 +
		(circleArea(0.2159)-circleArea(0.1651))*100
	if got := p.AnnulusVolume(0, 1000); math.Abs(got-wantAnnulus) > 1e-9 {
		t.Errorf("AnnulusVolume(0,1000) = %v, want %v", got, wantAnnulus)
	}

	// Below the bit the annulus is the whole hole.
	if got, want := p.AnnulusArea(1100), circleArea(0.2159); math.Abs(got-want) > 1e-12 {
		t.Errorf("AnnulusArea below bit = %v, want %v", got, want)
	}

	steel := SteelVolume(p, 900, 1000)
	wantSteel := (circleArea(0.1651) - circleArea(0.0714)) * 100
	if math.Abs(steel-wantSteel) > 1e-9 {
		t.Errorf("SteelVolume = %v, want %v", steel, wantSteel)
	}

	if got, want := HoleVolume(p, 900, 1000), circleArea(0.2159)*100; math.Abs(got-want) > 1e-9 {
		t.Errorf("HoleVolume = %v, want %v", got, want)
	}
}

func TestLengthForVolumeRoundTrip(t *testing.T) {
	p := testWell().At(1000)
	for _, from := range []float64{0, 250, 600, 950} {
		for _, length := range []float64{1, 30, 49.5} {
			v := p.AnnulusVolume(from, from+length)
			if got := p.AnnulusLengthForVolume(from, v); math.Abs(got-length) > 1e-6 {
				t.Errorf("annulus from %v: length for %v = %v, want %v", from, v, got, length)
			}
			v = p.StringVolume(from, from+length)
			if got := p.StringLengthForVolume(from, v); math.Abs(got-length) > 1e-6 {
				t.Errorf("string from %v: length for %v = %v, want %v", from, v, got, length)
			}
		}
	}
	if got := p.StringLengthForVolume(0, 0); got != 0 {
		t.Errorf("zero volume length = %v", got)
	}
}

func TestAtPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for empty well")
		}
	}()
	(&Well{}).At(100)
}

func TestSurvey(t *testing.T) {
	s, err := NewSurvey([]Station{
		{MD: 500, TVD: 500},
		{MD: 1000, TVD: 900},
	})
	if err != nil {
		t.Fatalf("NewSurvey: %v", err)
	}

	tests := []struct {
		md, want float64
	}{
		{-10, 0},
		{0, 0},
		{250, 250},
		{750, 700},
		{1000, 900},
		{1100, 980},
	}
	for _, tt := range tests {
		if got := s.TVD(tt.md); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("TVD(%v) = %v, want %v", tt.md, got, tt.want)
		}
	}

	if _, err := NewSurvey([]Station{{MD: 100, TVD: 150}}); err == nil {
		t.Error("expected error when TVD exceeds MD")
	}
	if _, err := NewSurvey([]Station{{MD: 100, TVD: 90}, {MD: 200, TVD: 80}}); err == nil {
		t.Error("expected error for decreasing TVD")
	}
}

func TestVertical(t *testing.T) {
	if got := (Vertical{}).TVD(-5); got != 0 {
		t.Errorf("TVD(-5) = %v", got)
	}
	if got := (Vertical{}).TVD(42); got != 42 {
		t.Errorf("TVD(42) = %v", got)
	}
}
