// Package models - Built-in label sets, model manifests and the model registry.
package models

// LabelSet identifies a built-in label table.
type LabelSet string

const (
	// LabelSetCOCO is the 80 COCO classes, 1-based, with background at index 0.
	LabelSetCOCO LabelSet = "coco"
	// LabelSetYOLO is the 80 COCO classes, 0-based, no background.
	LabelSetYOLO LabelSet = "yolo"
	// LabelSetTFCOCO is the 90-id TensorFlow COCO label map (80 classes, with gaps).
	LabelSetTFCOCO LabelSet = "tf-coco"
	// LabelSetVOC is the 20 Pascal VOC classes with background at index 0.
	LabelSetVOC LabelSet = "voc"
	// LabelSetNudity is the nudity detector classes with background at index 0.
	LabelSetNudity LabelSet = "nudity"
)

// LabelSets lists every built-in label set.
var LabelSets = []LabelSet{
	LabelSetCOCO,
	LabelSetYOLO,
	LabelSetTFCOCO,
	LabelSetVOC,
	LabelSetNudity,
}
