package battle

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/oklog/ulid/v2"
)

// PlaneCells 每架飞机固定占 10 格
const PlaneCells = 10

var ErrInvalidDirection = errors.New("direction must be up, down, left or right")

// Direction 机头朝向
type Direction string

const (
	DirUp    Direction = "up"
	DirDown  Direction = "down"
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

var Directions = []Direction{DirUp, DirDown, DirLeft, DirRight}

// ParseDirection 解析朝向，大小写不敏感
func ParseDirection(s string) (Direction, error) {
	d := Direction(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := templates[d]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return d, nil
}

type offset struct{ dx, dy int }

// templates 各朝向的飞机形状，第一格为机头
// down 是 up 沿 y 轴的镜像，right 是 left 沿 x 轴的镜像
var templates = map[Direction][PlaneCells]offset{
	DirUp: {
		{0, 0},
		{-2, 1}, {-1, 1}, {0, 1}, {1, 1}, {2, 1},
		{0, 2},
		{-1, 3}, {0, 3}, {1, 3},
	},
	DirDown: {
		{0, 0},
		{-2, -1}, {-1, -1}, {0, -1}, {1, -1}, {2, -1},
		{0, -2},
		{-1, -3}, {0, -3}, {1, -3},
	},
	DirLeft: {
		{0, 0},
		{1, -2}, {1, -1}, {1, 0}, {1, 1}, {1, 2},
		{2, 0},
		{3, -1}, {3, 0}, {3, 1},
	},
	DirRight: {
		{0, 0},
		{-1, -2}, {-1, -1}, {-1, 0}, {-1, 1}, {-1, 2},
		{-2, 0},
		{-3, -1}, {-3, 0}, {-3, 1},
	},
}

// HitResult 机身被击中后的结果
type HitResult int

const (
	HitWounded HitResult = iota
	HitDestroyed
)

type Plane struct {
	ID          string
	Head        Cell
	Direction   Direction
	MaxLife     int
	CurrentLife int
	Alive       bool
	Cells       []Cell
	Color       string
}

// NewPlane 以 (x, y) 为机头生成飞机的 10 个格子
// 格子可以越界，能否放下由 Arena 判断
func NewPlane(x, y int, dir Direction, maxLife int, color string) (*Plane, error) {
	tmpl, ok := templates[dir]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	if maxLife < 1 {
		maxLife = 1
	}

	p := &Plane{
		ID:          ulid.Make().String(),
		Direction:   dir,
		MaxLife:     maxLife,
		CurrentLife: maxLife,
		Alive:       true,
		Color:       color,
		Cells:       make([]Cell, 0, PlaneCells),
	}
	for i, o := range tmpl {
		kind := KindPart
		if i == 0 {
			kind = KindHead
		}
		p.Cells = append(p.Cells, Cell{X: x + o.dx, Y: y + o.dy, Kind: kind, PlaneID: p.ID})
	}
	p.Head = p.Cells[0]
	return p, nil
}

// RegisterHit 机身中弹一次
func (p *Plane) RegisterHit() HitResult {
	if p.CurrentLife > 1 {
		p.CurrentLife--
		return HitWounded
	}
	p.Destroy()
	return HitDestroyed
}

// Destroy 机头中弹，无论剩余生命直接击毁
func (p *Plane) Destroy() {
	p.CurrentLife = 0
	p.Alive = false
}

func extent(dir Direction) (minDx, maxDx, minDy, maxDy int) {
	for _, o := range templates[dir] {
		minDx, maxDx = min(minDx, o.dx), max(maxDx, o.dx)
		minDy, maxDy = min(minDy, o.dy), max(maxDy, o.dy)
	}
	return
}

// RandomColor 返回 css rgb() 颜色
func RandomColor(r *rand.Rand) string {
	return fmt.Sprintf("rgb(%d,%d,%d)", r.Intn(256), r.Intn(256), r.Intn(256))
}
