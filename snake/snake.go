// Package snake implements the classic snake game as a
// gridrl environment.
package snake

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
)

// Actions, in the order of their indices.
const (
	Up = iota
	Right
	Down
	Left

	NumActions
)

// Rewards given by the game.
const (
	FoodReward  = 1.0
	DeathReward = -1.0
	WinReward   = 1.0
)

// Observation planes, in the order they appear in an
// observation vector.
const (
	headPlane = iota
	bodyPlane
	foodPlane

	numPlanes
)

var moves = [NumActions][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}

// Options configures a Game.
type Options struct {
	Width  int
	Height int
	Seed   int64

	// MaxHunger ends an episode after this many steps
	// without eating.
	// If 0, 2*Width*Height is used.
	MaxHunger int
}

type point struct {
	X, Y int
}

// Game is a snake game on a Width x Height board.
//
// Observations consist of three Width*Height planes
// marking the head, the rest of the body, and the food.
type Game struct {
	opts Options
	rng  *rand.Rand

	body      []point
	food      point
	direction int
	hunger    int
	done      bool
}

// New creates a Game.
// The game must be Reset before it is stepped.
func New(opts Options) *Game {
	if opts.Width < 2 || opts.Height < 2 {
		panic("snake board must be at least 2x2")
	}
	if opts.MaxHunger == 0 {
		opts.MaxHunger = 2 * opts.Width * opts.Height
	}
	return &Game{
		opts: opts,
		rng:  rand.New(rand.NewSource(opts.Seed)),
		done: true,
	}
}

// Space returns the observation size and action count.
func (g *Game) Space() (obsSize, numActions int) {
	return numPlanes * g.opts.Width * g.opts.Height, NumActions
}

// Reset starts a new episode with a snake of length one
// at a random cell.
func (g *Game) Reset() ([]float64, error) {
	head := point{X: g.rng.Intn(g.opts.Width), Y: g.rng.Intn(g.opts.Height)}
	g.body = append(g.body[:0], head)
	g.direction = g.rng.Intn(NumActions)
	g.hunger = 0
	g.done = false
	g.placeFood()
	return g.observation(), nil
}

// Step moves the snake one cell.
//
// Turning back onto the body is treated like any other
// collision.
func (g *Game) Step(action int) ([]float64, float64, bool, error) {
	if g.done {
		return nil, 0, false, errors.New("snake: step after episode end")
	}
	if action < 0 || action >= NumActions {
		return nil, 0, false, fmt.Errorf("snake: invalid action %d", action)
	}
	g.direction = action
	head := g.body[0]
	next := point{X: head.X + moves[action][0], Y: head.Y + moves[action][1]}

	if !g.inside(next) || g.hitsBody(next) {
		g.done = true
		return g.observation(), DeathReward, true, nil
	}

	g.body = append(g.body, point{})
	copy(g.body[1:], g.body)
	g.body[0] = next

	if next == g.food {
		g.hunger = 0
		if len(g.body) == g.opts.Width*g.opts.Height {
			g.done = true
			return g.observation(), WinReward, true, nil
		}
		g.placeFood()
		return g.observation(), FoodReward, false, nil
	}

	g.body = g.body[:len(g.body)-1]
	g.hunger++
	if g.hunger >= g.opts.MaxHunger {
		g.done = true
	}
	return g.observation(), 0, g.done, nil
}

// Len returns the length of the snake.
func (g *Game) Len() int {
	return len(g.body)
}

// Render draws the board as text.
func (g *Game) Render(w io.Writer) error {
	cells := make([][]byte, g.opts.Height)
	for y := range cells {
		cells[y] = make([]byte, g.opts.Width)
		for x := range cells[y] {
			cells[y][x] = '.'
		}
	}
	cells[g.food.Y][g.food.X] = '*'
	for i, p := range g.body {
		if i == 0 {
			cells[p.Y][p.X] = '@'
		} else {
			cells[p.Y][p.X] = 'o'
		}
	}
	bw := bufio.NewWriter(w)
	for _, row := range cells {
		bw.Write(row)
		bw.WriteByte('\n')
	}
	fmt.Fprintf(bw, "length=%d hunger=%d\n", len(g.body), g.hunger)
	return bw.Flush()
}

func (g *Game) inside(p point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.opts.Width && p.Y < g.opts.Height
}

// hitsBody checks for a collision with every segment
// except the tail, which moves out of the way.
// Reversing onto the neck always collides.
func (g *Game) hitsBody(p point) bool {
	if len(g.body) > 1 && g.body[1] == p {
		return true
	}
	for _, b := range g.body[:len(g.body)-1] {
		if b == p {
			return true
		}
	}
	return false
}

func (g *Game) placeFood() {
	occupied := make(map[point]bool, len(g.body))
	for _, p := range g.body {
		occupied[p] = true
	}
	free := make([]point, 0, g.opts.Width*g.opts.Height-len(g.body))
	for y := 0; y < g.opts.Height; y++ {
		for x := 0; x < g.opts.Width; x++ {
			if p := (point{X: x, Y: y}); !occupied[p] {
				free = append(free, p)
			}
		}
	}
	g.food = free[g.rng.Intn(len(free))]
}

func (g *Game) observation() []float64 {
	area := g.opts.Width * g.opts.Height
	obs := make([]float64, numPlanes*area)
	cell := func(plane int, p point) int {
		return plane*area + p.Y*g.opts.Width + p.X
	}
	for i, p := range g.body {
		if i == 0 {
			obs[cell(headPlane, p)] = 1
		} else {
			obs[cell(bodyPlane, p)] = 1
		}
	}
	obs[cell(foodPlane, g.food)] = 1
	return obs
}
