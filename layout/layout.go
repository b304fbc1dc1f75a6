// Package layout detects structurally meaningful regions (figures,
// tables, formulas) on rasterized pages and crops them into persisted
// image artifacts.
package layout

import "errors"

// ErrModelUnavailable is returned when the detection service cannot
// load or serve the requested layout model.
var ErrModelUnavailable = errors.New("layout: detection model unavailable")

// Label classifies a detected region.
type Label string

const (
	LabelText     Label = "Text"
	LabelTitle    Label = "Title"
	LabelList     Label = "List"
	LabelTable    Label = "Table"
	LabelFigure   Label = "Figure"
	LabelEquation Label = "Equation"
)

// Padding is a per-edge pixel expansion applied before cropping.
// Figures and tables get wider right/top padding than formulas because
// captions and labels sit adjacent to them.
type Padding struct {
	Left, Right, Top, Bottom int
}

// Profile selects a detection model with its label map, confidence
// threshold, retained labels, and padding policy. Profiles are
// immutable; construct one per detector invocation.
type Profile struct {
	// Model is the layout-model reference understood by the detection
	// service.
	Model string
	// LabelMap translates the model's class ids to semantic labels.
	LabelMap map[int]Label
	// Threshold is the minimum confidence for a region to be retained.
	Threshold float64
	// Keep lists the labels worth extracting; everything else detected
	// by the model is dropped.
	Keep []Label
	// Pad is the profile's crop padding policy.
	Pad Padding
}

// DefaultThreshold is the confidence floor applied when a profile does
// not override it.
const DefaultThreshold = 0.8

// FigureTableProfile returns the profile for figure and table
// detection (PubLayNet-trained model).
func FigureTableProfile() Profile {
	return Profile{
		Model: "lp://PubLayNet/faster_rcnn_R_50_FPN_3x",
		LabelMap: map[int]Label{
			0: LabelText, 1: LabelTitle, 2: LabelList, 3: LabelTable, 4: LabelFigure,
		},
		Threshold: DefaultThreshold,
		Keep:      []Label{LabelTable, LabelFigure},
		Pad:       Padding{Left: 5, Right: 10, Top: 15, Bottom: 5},
	}
}

// FormulaProfile returns the profile for mathematical formula
// detection (MFD-trained model).
func FormulaProfile() Profile {
	return Profile{
		Model:     "lp://MFD/faster_rcnn_R_50_FPN_3x",
		LabelMap:  map[int]Label{1: LabelEquation},
		Threshold: DefaultThreshold,
		Keep:      []Label{LabelEquation},
		Pad:       Padding{Left: 5, Right: 5, Top: 5, Bottom: 5},
	}
}

// keeps reports whether the profile retains the given label.
func (p Profile) keeps(l Label) bool {
	for _, k := range p.Keep {
		if k == l {
			return true
		}
	}
	return false
}

// Box is an axis-aligned bounding box in page pixel coordinates.
type Box struct {
	Left, Top, Right, Bottom float64
}

// Region is a detected area on one page. Every region belongs to
// exactly one page of one document.
type Region struct {
	PageIndex  int
	Label      Label
	Confidence float64
	Box        Box
}
