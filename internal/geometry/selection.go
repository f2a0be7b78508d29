package geometry

// SelectedArea couples a normalized bounding box to its document location
// and the raw pixel rectangle of the drag gesture that produced it.
type SelectedArea struct {
	Box      BoundingBox `json:"box"`
	Document string      `json:"document"`
	Page     int         `json:"page"`
	Pixels   Rect        `json:"pixels"`
}
