package models

import (
	"fmt"

	"github.com/nvr-ai/go-detect/models/projector"
)

// cocoNames is the 80 COCO class names in contiguous order.
var cocoNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane",
	"bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird",
	"cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat",
	"baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed",
	"dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "book", "clock",
	"vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// tfCOCOGaps are the ids the TensorFlow COCO label map leaves unassigned.
var tfCOCOGaps = map[int]bool{12: true, 26: true, 29: true, 30: true, 45: true, 66: true, 68: true, 69: true, 71: true, 83: true}

// Background is the display name of class 0 in tables that reserve it.
const Background = "background"

// COCOLabels is the 80 COCO classes with background at 0.
var COCOLabels = projector.NewLabelTable(0, append([]string{Background}, cocoNames...)...)

// YOLOLabels is the 80 COCO classes indexed from 0.
var YOLOLabels = projector.NewLabelTable(0, cocoNames...)

// TFCOCOLabels mirrors the label map shipped with TensorFlow object detection
// models (SSD, CenterNet, EfficientDet, RetinaNet): ids 1..90 with gaps.
var TFCOCOLabels = func() projector.LabelTable {
	t := make(projector.LabelTable, len(cocoNames))
	id := 1
	for _, name := range cocoNames {
		for tfCOCOGaps[id] {
			id++
		}
		t[id] = projector.Label{DisplayName: name}
		id++
	}
	return t
}()

// VOCLabels is the 20 Pascal VOC classes with background at 0.
var VOCLabels = projector.NewLabelTable(0,
	Background, "aeroplane", "bicycle", "bird", "boat",
	"bottle", "bus", "car", "cat", "chair",
	"cow", "diningtable", "dog", "horse", "motorbike",
	"person", "pottedplant", "sheep", "sofa", "train",
	"tvmonitor",
)

// NudityLabels is the class table of the anchor-free nudity detector.
var NudityLabels = projector.NewLabelTable(0,
	Background,
	"exposed anus",
	"exposed armpits",
	"belly",
	"exposed belly",
	"buttocks",
	"exposed buttocks",
	"female face",
	"male face",
	"feet",
	"exposed feet",
	"breast",
	"exposed breast",
	"vagina",
	"exposed vagina",
	"male breast",
	"exposed penis",
)

// NudityGroups sorts the nudity detector classes into overlapping categories.
var NudityGroups = projector.Groups{
	"person":    {7, 8},
	"sensitive": {2, 3, 4, 5, 9, 10, 11, 13, 15},
	"explicit":  {1, 6, 12, 14, 16},
}

// Labels returns the table of a built-in label set.
func Labels(set LabelSet) (projector.LabelTable, error) {
	switch set {
	case LabelSetCOCO:
		return COCOLabels, nil
	case LabelSetYOLO:
		return YOLOLabels, nil
	case LabelSetTFCOCO:
		return TFCOCOLabels, nil
	case LabelSetVOC:
		return VOCLabels, nil
	case LabelSetNudity:
		return NudityLabels, nil
	default:
		return nil, fmt.Errorf("label set %q not registered", set)
	}
}

// DefaultGroups returns the built-in groups of a label set, or nil.
func DefaultGroups(set LabelSet) projector.Groups {
	if set == LabelSetNudity {
		return NudityGroups
	}
	return nil
}

// MapClass maps a class id from one label set to another by display name.
//
// Arguments:
//   - from: The label set the id belongs to.
//   - id: The class id.
//   - to: The target label set.
//
// Returns:
//   - int: The id of the same class in the target set.
//   - error: An error if either set is unknown or the class has no counterpart.
func MapClass(from LabelSet, id int, to LabelSet) (int, error) {
	src, err := Labels(from)
	if err != nil {
		return -1, err
	}
	dst, err := Labels(to)
	if err != nil {
		return -1, err
	}
	l, ok := src[id]
	if !ok {
		return -1, fmt.Errorf("index %d out of range for label set %q", id, from)
	}
	target, ok := dst.Lookup(l.DisplayName)
	if !ok {
		return -1, fmt.Errorf("name %q not found in label set %q", l.DisplayName, to)
	}
	return target, nil
}
