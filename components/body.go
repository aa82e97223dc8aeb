package components

// ShapeKind selects the collider geometry on the ground plane.
type ShapeKind uint8

const (
	ShapeCircle ShapeKind = iota
	ShapeBox
)

// Collider holds the ground-plane footprint of an entity.
// Circles use Radius; boxes use HalfWidth (X) and HalfDepth (Z).
type Collider struct {
	Shape     ShapeKind
	Radius    float64
	HalfWidth float64
	HalfDepth float64
}
