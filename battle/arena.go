package battle

import (
	"errors"
	"fmt"
)

var ErrOutOfRange = errors.New("coordinate outside the arena")

// ShotResult 一次来袭射击的结算结果
type ShotResult struct {
	X              int
	Y              int
	Kind           Kind
	PlaneID        string
	FleetDestroyed bool
}

// Arena 一名玩家的棋盘及其上的机队，非并发安全，由所属会话串行访问
type Arena struct {
	width     int
	height    int
	maxPlanes int

	grid      [][]Cell
	planes    []*Plane
	destroyed []*Plane
	byID      map[string]*Plane
}

// NewArena 创建 width x height 的空棋盘，最多容纳 maxPlanes 架飞机
func NewArena(width, height, maxPlanes int) *Arena {
	a := &Arena{width: width, height: height, maxPlanes: maxPlanes}
	a.Restart()
	return a
}

func (a *Arena) Width() int { return a.width }
func (a *Arena) Height() int { return a.height }
func (a *Arena) MaxPlanes() int { return a.maxPlanes }

// Restart 清空所有飞机，重建同尺寸空棋盘
func (a *Arena) Restart() {
	a.grid = make([][]Cell, a.height)
	for y := 0; y < a.height; y++ {
		a.grid[y] = make([]Cell, a.width)
		for x := 0; x < a.width; x++ {
			a.grid[y][x] = Cell{X: x, Y: y, Kind: KindEmpty}
		}
	}
	a.planes = nil
	a.destroyed = nil
	a.byID = make(map[string]*Plane)
}

func (a *Arena) InBounds(x, y int) bool {
	return x >= 0 && x < a.width && y >= 0 && y < a.height
}

// HeadBand 返回朝向 dir 时机头可放置的闭区间，保证整架飞机落在棋盘内
func (a *Arena) HeadBand(dir Direction) (minX, maxX, minY, maxY int) {
	minDx, maxDx, minDy, maxDy := extent(dir)
	return -minDx, a.width - 1 - maxDx, -minDy, a.height - 1 - maxDy
}

// CanPlace 判断 p 能否放下：棋盘未满、机头在合法区间内、不与已有飞机重叠
func (a *Arena) CanPlace(p *Plane) bool {
	if p == nil || a.PlaneCount() >= a.maxPlanes {
		return false
	}
	if _, ok := a.byID[p.ID]; ok {
		return false
	}
	if _, ok := templates[p.Direction]; !ok {
		return false
	}

	minX, maxX, minY, maxY := a.HeadBand(p.Direction)
	if p.Head.X < minX || p.Head.X > maxX || p.Head.Y < minY || p.Head.Y > maxY {
		return false
	}
	for _, c := range p.Cells {
		if !a.InBounds(c.X, c.Y) || a.grid[c.Y][c.X].Kind != KindEmpty {
			return false
		}
	}
	return true
}

// Place 放置 p；失败返回 false 且棋盘不变
func (a *Arena) Place(p *Plane) bool {
	if !a.CanPlace(p) {
		return false
	}
	for _, c := range p.Cells {
		a.grid[c.Y][c.X] = c
	}
	a.planes = append(a.planes, p)
	a.byID[p.ID] = p
	return true
}

// Remove 移除一架存活的飞机
func (a *Arena) Remove(planeID string) bool {
	idx := -1
	for i, p := range a.planes {
		if p.ID == planeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	p := a.planes[idx]
	for _, c := range p.Cells {
		a.grid[c.Y][c.X] = Cell{X: c.X, Y: c.Y, Kind: KindEmpty}
	}
	a.planes = append(a.planes[:idx], a.planes[idx+1:]...)
	delete(a.byID, planeID)
	return true
}

// PlaneAt 返回占据 (x, y) 的飞机（含已击毁）
func (a *Arena) PlaneAt(x, y int) (*Plane, bool) {
	if !a.InBounds(x, y) {
		return nil, false
	}
	p, ok := a.byID[a.grid[y][x].PlaneID]
	return p, ok
}

func (a *Arena) Plane(id string) (*Plane, bool) {
	p, ok := a.byID[id]
	return p, ok
}

// Planes 仍存活的飞机
func (a *Arena) Planes() []*Plane {
	return append([]*Plane(nil), a.planes...)
}

func (a *Arena) DestroyedPlanes() []*Plane {
	return append([]*Plane(nil), a.destroyed...)
}

// PlaneCount 已放置的飞机数，含已击毁
func (a *Arena) PlaneCount() int { return len(a.planes) + len(a.destroyed) }

// IsReady 机队已全部放置且无损失
func (a *Arena) IsReady() bool { return len(a.planes) == a.maxPlanes }

// FleetDestroyed 失败条件：全部飞机被击毁
func (a *Arena) FleetDestroyed() bool {
	return a.maxPlanes > 0 && len(a.destroyed) >= a.maxPlanes
}

func (a *Arena) Cell(x, y int) (Cell, error) {
	if !a.InBounds(x, y) {
		return Cell{}, fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, x, y)
	}
	return a.grid[y][x], nil
}

// Grid 返回棋盘副本，下标为 [y][x]
func (a *Arena) Grid() [][]Cell {
	out := make([][]Cell, a.height)
	for y := range a.grid {
		out[y] = append([]Cell(nil), a.grid[y]...)
	}
	return out
}

// ResolveShot 结算对 (x, y) 的来袭射击
// 重复射击同一格不改变任何状态，返回该格现有类型
func (a *Arena) ResolveShot(x, y int) (ShotResult, error) {
	if !a.InBounds(x, y) {
		return ShotResult{}, fmt.Errorf("%w: (%d,%d)", ErrOutOfRange, x, y)
	}

	c := &a.grid[y][x]
	switch c.Kind {
	case KindEmpty:
		c.Kind = KindFiredEmpty
	case KindPart:
		if p, ok := a.byID[c.PlaneID]; ok {
			if p.Alive && p.RegisterHit() == HitDestroyed {
				a.markDestroyed(p)
			}
		}
		c.Kind = KindFiredWound
	case KindHead:
		if p, ok := a.byID[c.PlaneID]; ok {
			p.Destroy()
			a.markDestroyed(p)
		}
		c.Kind = KindFiredDestroyed
	}

	return ShotResult{
		X:              x,
		Y:              y,
		Kind:           c.Kind,
		PlaneID:        c.PlaneID,
		FleetDestroyed: a.FleetDestroyed(),
	}, nil
}

// markDestroyed 将 p 从存活集合移到击毁集合，只做一次
func (a *Arena) markDestroyed(p *Plane) {
	for i, live := range a.planes {
		if live == p {
			a.planes = append(a.planes[:i], a.planes[i+1:]...)
			a.destroyed = append(a.destroyed, p)
			return
		}
	}
}
