package types

import "image"

// Point is a coordinate in surface-pixel space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Segment is a straight line between two surface points
type Segment struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ImageRef is the labeling server's answer to a next-image request
type ImageRef struct {
	URI string `json:"uri"`
	ID  string `json:"id"`
}

// LoadedImage describes the image currently installed on a surface
type LoadedImage struct {
	ID        string
	Width     int
	Height    int
	Format    string
	Label     int64
	LabelText string
	// ScaleX and ScaleY map natural image pixels to surface pixels.
	ScaleX float64
	ScaleY float64
	Pixels image.Image
}

// NormalizedBox is the annotation record posted to the labeling server
type NormalizedBox struct {
	Height    int64   `json:"image/height"`
	Width     int64   `json:"image/width"`
	Filename  string  `json:"image/filename"`
	SourceID  string  `json:"image/source_id"`
	Format    string  `json:"image/format"`
	Xmin      float64 `json:"image/object/bbox/xmin"`
	Xmax      float64 `json:"image/object/bbox/xmax"`
	Ymin      float64 `json:"image/object/bbox/ymin"`
	Ymax      float64 `json:"image/object/bbox/ymax"`
	ClassText string  `json:"image/object/class/text"`
	Label     int64   `json:"image/object/class/label"`
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}
