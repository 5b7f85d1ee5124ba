package detect

import (
	"math"
	"testing"
)

// buildOutput assembles a flattened [4+numClasses, anchors] tensor from
// per-anchor box and score definitions.
func buildOutput(anchors int, numClasses int, set func(row, anchor int) float32) []float32 {
	out := make([]float32, (4+numClasses)*anchors)
	for row := 0; row < 4+numClasses; row++ {
		for a := 0; a < anchors; a++ {
			out[row*anchors+a] = set(row, a)
		}
	}
	return out
}

func TestDecodeCandidatesMapsCoordinates(t *testing.T) {
	// One anchor, one class, identity letterbox: a centered 100x50 box.
	lb := Letterbox{Gain: 1.0, OrigW: 640, OrigH: 640}
	out := buildOutput(1, 1, func(row, _ int) float32 {
		switch row {
		case 0:
			return 320 // cx
		case 1:
			return 160 // cy
		case 2:
			return 100 // w
		case 3:
			return 50 // h
		default:
			return 0.9 // class score
		}
	})

	boxes := DecodeCandidates(out, 1, 1, lb, 0.25)
	if len(boxes) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(boxes))
	}
	b := boxes[0]
	if b.Rect.Min.X != 270 || b.Rect.Max.X != 370 || b.Rect.Min.Y != 135 || b.Rect.Max.Y != 185 {
		t.Errorf("unexpected rect %v", b.Rect)
	}
	if b.ClassID != 0 || math.Abs(float64(b.Confidence)-0.9) > 1e-6 {
		t.Errorf("unexpected class/confidence: %d %v", b.ClassID, b.Confidence)
	}
}

func TestDecodeCandidatesLetterboxMapping(t *testing.T) {
	// 1280x640 source scaled by 0.5 into a 640x640 input with 160px top pad.
	lb := Letterbox{Gain: 0.5, PadX: 0, PadY: 160, OrigW: 1280, OrigH: 640}
	out := buildOutput(1, 1, func(row, _ int) float32 {
		switch row {
		case 0:
			return 320
		case 1:
			return 320
		case 2:
			return 100
		case 3:
			return 100
		default:
			return 0.8
		}
	})

	boxes := DecodeCandidates(out, 1, 1, lb, 0.25)
	if len(boxes) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(boxes))
	}
	r := boxes[0].Rect
	// (320-50-0)/0.5 = 540 .. (320+50)/0.5 = 740 horizontally,
	// (320-50-160)/0.5 = 220 .. (320+50-160)/0.5 = 420 vertically.
	if r.Min.X != 540 || r.Max.X != 740 || r.Min.Y != 220 || r.Max.Y != 420 {
		t.Errorf("unexpected rect %v", r)
	}
}

func TestDecodeCandidatesThreshold(t *testing.T) {
	lb := Letterbox{Gain: 1.0, OrigW: 640, OrigH: 640}
	out := buildOutput(2, 2, func(row, a int) float32 {
		switch row {
		case 0, 1:
			return 320
		case 2, 3:
			return 40
		case 4: // class 0 scores
			if a == 0 {
				return 0.7
			}
			return 0.1
		default: // class 1 scores
			if a == 0 {
				return 0.2
			}
			return 0.05
		}
	})

	boxes := DecodeCandidates(out, 2, 2, lb, 0.25)
	if len(boxes) != 1 {
		t.Fatalf("expected 1 candidate above threshold, got %d", len(boxes))
	}
	if boxes[0].ClassID != 0 {
		t.Errorf("expected best class 0, got %d", boxes[0].ClassID)
	}
	if boxes[0].Label != "tongue_left" {
		t.Errorf("expected label tongue_left, got %s", boxes[0].Label)
	}
}

func TestDecodeCandidatesShortTensor(t *testing.T) {
	if boxes := DecodeCandidates([]float32{1, 2, 3}, 6, 8400, Letterbox{Gain: 1, OrigW: 640, OrigH: 640}, 0.25); len(boxes) != 0 {
		t.Errorf("expected no candidates from truncated tensor, got %d", len(boxes))
	}
}

func TestSortByConfidence(t *testing.T) {
	boxes := []Box{
		{ClassID: 0, Confidence: 0.4},
		{ClassID: 1, Confidence: 0.9},
		{ClassID: 2, Confidence: 0.9},
		{ClassID: 3, Confidence: 0.6},
	}
	SortByConfidence(boxes)

	want := []int{1, 2, 3, 0} // stable: equal scores keep input order
	for i, cls := range want {
		if boxes[i].ClassID != cls {
			t.Fatalf("position %d: expected class %d, got %d", i, cls, boxes[i].ClassID)
		}
	}
}

func TestLabelName(t *testing.T) {
	tests := []struct {
		id       int
		expected string
	}{
		{0, "tongue_left"},
		{4, "tongue_center"},
		{5, "no_tongue"},
		{-1, "no_tongue"},
		{99, "no_tongue"},
	}
	for _, tt := range tests {
		if got := LabelName(tt.id); got != tt.expected {
			t.Errorf("LabelName(%d) = %q, expected %q", tt.id, got, tt.expected)
		}
	}
}
