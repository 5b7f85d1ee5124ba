package detect

import (
	"image"
	"sort"
)

// Letterbox describes how an image was scaled and padded into the square
// model input, so box coordinates can be mapped back.
type Letterbox struct {
	Gain  float64 // scale applied to the original image
	PadX  float64 // horizontal padding added after scaling
	PadY  float64 // vertical padding added after scaling
	OrigW int
	OrigH int
}

// DecodeCandidates parses a YOLOv8-style output tensor into candidate boxes.
//
// The tensor layout is [4+numClasses, anchors] flattened row-major: the first
// four rows are box center x, center y, width and height in model input
// coordinates, followed by one row of per-class scores per class. Candidates
// below confThreshold are dropped; coordinates are mapped back through the
// letterbox transform and clamped to the original image.
func DecodeCandidates(out []float32, numClasses, anchors int, lb Letterbox, confThreshold float32) []Box {
	var boxes []Box

	if len(out) < (4+numClasses)*anchors {
		return boxes
	}

	for a := 0; a < anchors; a++ {
		bestClass := -1
		var bestScore float32
		for c := 0; c < numClasses; c++ {
			score := out[(4+c)*anchors+a]
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestClass < 0 || bestScore < confThreshold {
			continue
		}

		cx := float64(out[0*anchors+a])
		cy := float64(out[1*anchors+a])
		w := float64(out[2*anchors+a])
		h := float64(out[3*anchors+a])

		x0 := (cx - w/2 - lb.PadX) / lb.Gain
		y0 := (cy - h/2 - lb.PadY) / lb.Gain
		x1 := (cx + w/2 - lb.PadX) / lb.Gain
		y1 := (cy + h/2 - lb.PadY) / lb.Gain

		rect := image.Rect(int(x0), int(y0), int(x1), int(y1)).
			Intersect(image.Rect(0, 0, lb.OrigW, lb.OrigH))
		if rect.Empty() {
			continue
		}

		boxes = append(boxes, Box{
			Rect:       rect,
			ClassID:    bestClass,
			Label:      LabelName(bestClass),
			Confidence: bestScore,
		})
	}

	return boxes
}

// SortByConfidence orders boxes by confidence descending, preserving the
// original order for equal scores.
func SortByConfidence(boxes []Box) {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})
}
