package battle

import (
	"errors"
	"math/rand"
)

var ErrNoPlacement = errors.New("could not place the fleet")

// PlaceRandomFleet 随机放置飞机直到棋盘放满，总尝试次数不超过 maxTries
func PlaceRandomFleet(a *Arena, r *rand.Rand, life, maxTries int) error {
	for tries := 0; !a.IsReady(); tries++ {
		if tries >= maxTries {
			return ErrNoPlacement
		}
		dir := Directions[r.Intn(len(Directions))]
		minX, maxX, minY, maxY := a.HeadBand(dir)
		if maxX < minX || maxY < minY {
			continue
		}
		x := minX + r.Intn(maxX-minX+1)
		y := minY + r.Intn(maxY-minY+1)
		p, err := NewPlane(x, y, dir, life, RandomColor(r))
		if err != nil {
			return err
		}
		a.Place(p)
	}
	return nil
}

// RandomTarget 在敌方视图中随机挑一个尚未射击的格子
func RandomTarget(view [][]Kind, r *rand.Rand) (x, y int, ok bool) {
	var open [][2]int
	for y := range view {
		for x, k := range view[y] {
			if !k.Fired() {
				open = append(open, [2]int{x, y})
			}
		}
	}
	if len(open) == 0 {
		return 0, 0, false
	}
	c := open[r.Intn(len(open))]
	return c[0], c[1], true
}
