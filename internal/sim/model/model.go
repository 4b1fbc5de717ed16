package model

import "math"

// Pos is a grid cell coordinate. Multi-cell blocks are addressed by their anchor cell.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Pos) Add(dx, dy int) Pos { return Pos{X: p.X + dx, Y: p.Y + dy} }

// Dst is the euclidean distance between two cells, in cells.
func (p Pos) Dst(o Pos) float32 {
	dx := float64(p.X - o.X)
	dy := float64(p.Y - o.Y)
	return float32(math.Sqrt(dx*dx + dy*dy))
}

// Less orders positions row-major; used wherever iteration order must be deterministic.
func (p Pos) Less(o Pos) bool {
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	return p.X < o.X
}

// Team identifies an owning faction. Team 0 is the neutral/derelict team.
type Team uint8

const (
	TeamDerelict Team = 0
	TeamSharded  Team = 1
	TeamCrux     Team = 2
)

func Clamp01(x float32) float32 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
