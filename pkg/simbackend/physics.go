package simbackend

import (
	"math"

	"github.com/teslashibe/go-flightdeck/pkg/protocol"
)

// Physics holds the point-mass flight model constants.
type Physics struct {
	Mass       float64 // kg
	MaxThrust  float64 // N
	DragCoeff  float64
	Gravity    float64 // m/s²
	BatteryUse float64 // fraction per second at full throttle
}

// DefaultPhysics is a small quadcopter.
var DefaultPhysics = Physics{
	Mass:       1.2,
	MaxThrust:  18.0,
	DragCoeff:  0.4,
	Gravity:    9.81,
	BatteryUse: 0.002,
}

// Vehicle is the simulated vehicle state in the backend frame (z up).
type Vehicle struct {
	Position [3]float64
	Velocity [3]float64
	Rotation [3]float64 // roll, pitch, yaw
	Battery  float64
	Collided bool
}

// NewVehicle returns a vehicle at rest on the ground with a full battery.
func NewVehicle() Vehicle {
	return Vehicle{Battery: 1}
}

// bodyUp is the thrust axis after a Z(yaw)·Y(pitch)·X(roll) rotation.
func bodyUp(roll, pitch, yaw float64) [3]float64 {
	cr, sr := math.Cos(roll), math.Sin(roll)
	cp, sp := math.Cos(pitch), math.Sin(pitch)
	cy, sy := math.Cos(yaw), math.Sin(yaw)
	return [3]float64{
		cy*sp*cr + sy*sr,
		sy*sp*cr - cy*sr,
		cp * cr,
	}
}

// Step advances v by dt seconds under cmd. Pitch, roll and yaw are rates.
func (p Physics) Step(v *Vehicle, cmd protocol.Command, dt float64) {
	throttle := math.Max(0, math.Min(1, cmd.Throttle))
	if v.Battery <= 0 {
		throttle = 0
	}

	up := bodyUp(v.Rotation[0], v.Rotation[1], v.Rotation[2])
	thrust := throttle * p.MaxThrust

	var acc [3]float64
	for i := range acc {
		acc[i] = up[i]*thrust/p.Mass - p.DragCoeff*v.Velocity[i]/p.Mass
	}
	acc[2] -= p.Gravity

	for i := range v.Velocity {
		v.Velocity[i] += acc[i] * dt
		v.Position[i] += v.Velocity[i] * dt
	}

	// Ground
	v.Collided = false
	if v.Position[2] < 0 {
		v.Position[2] = 0
		if v.Velocity[2] < 0 {
			v.Velocity[2] = 0
		}
		v.Collided = true
	}

	v.Rotation[0] += cmd.Roll * dt
	v.Rotation[1] += cmd.Pitch * dt
	v.Rotation[2] += cmd.Yaw * dt

	v.Battery = math.Max(0, v.Battery-throttle*p.BatteryUse*dt)
}

// Telemetry renders v as a telemetry frame.
func (v Vehicle) Telemetry(simTime float64) protocol.Telemetry {
	t := protocol.Telemetry{
		Pos: v.Position[:],
		Rot: v.Rotation[:],
	}
	t.Set("vel", v.Velocity[:])
	t.Set("battery", v.Battery)
	t.Set("time", simTime)
	t.Set("collided", v.Collided)
	return t
}

// episodeReward scores a vehicle state: altitude kept, collisions punished.
func episodeReward(v Vehicle) float64 {
	r := math.Min(v.Position[2], 10) / 10
	if v.Collided {
		r -= 1
	}
	return r
}
