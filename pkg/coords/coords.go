// Package coords maps backend telemetry vectors into the visualization frame.
//
// The backend is Z-up (x, y, z) with rotation as (roll, pitch, yaw). The
// visualization is Y-up, so position swaps its last two components and
// rotation is cycled left by one.
package coords

import "github.com/teslashibe/go-flightdeck/pkg/protocol"

// Vec3 is a 3D vector in the visualization frame.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// NewVec3 creates a new vector with the given components.
func NewVec3(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

// FromSlice reads up to three components; missing ones are zero.
func FromSlice(v []float64) Vec3 {
	var out [3]float64
	copy(out[:], v)
	return Vec3{out[0], out[1], out[2]}
}

// Slice returns the vector as a three-element slice.
func (v Vec3) Slice() []float64 { return []float64{v.X, v.Y, v.Z} }

// Pose is a telemetry frame's position and rotation in the visualization frame.
type Pose struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"`
}

// Position maps backend [p0,p1,p2] to (p0, p2, p1).
func Position(p []float64) Vec3 {
	b := FromSlice(p)
	return Vec3{X: b.X, Y: b.Z, Z: b.Y}
}

// Rotation maps backend [r0,r1,r2] to (r1, r2, r0).
func Rotation(r []float64) Vec3 {
	b := FromSlice(r)
	return Vec3{X: b.Y, Y: b.Z, Z: b.X}
}

// Map converts a telemetry frame's vectors. Absent vectors map to zero.
func Map(t protocol.Telemetry) Pose {
	return Pose{
		Position: Position(t.Pos),
		Rotation: Rotation(t.Rot),
	}
}
