package simulation

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/nvandessel/celldyn/internal/cell"
	"github.com/nvandessel/celldyn/internal/microenv"
	"github.com/nvandessel/celldyn/internal/models"
)

// culture is the private population of one run. Only live cells are kept;
// cells that die are counted for the step they die in and then dropped.
type culture struct {
	line     *models.CellLineParameters
	capacity int
	seed     uint64
	cells    []cell.Cell

	// scratch buffers reused across steps
	survivors []cell.Cell
	children  []cell.Cell
	exposed   []int
	dividers  []admission
	allowed   []bool
}

// admission is a cell asking to divide, ranked by its daughter's priority.
type admission struct {
	index    int
	priority uint64
}

func newCulture(line *models.CellLineParameters, initial, capacity int, seed uint64) *culture {
	c := &culture{
		line:      line,
		capacity:  capacity,
		seed:      seed,
		cells:     make([]cell.Cell, 0, capacity),
		survivors: make([]cell.Cell, 0, capacity),
	}
	r := newRand(seed, streamInit)
	for i := 1; i <= initial; i++ {
		id := uint64(i)
		c.cells = append(c.cells, cell.NewAt(id, line, r.Float64(), c.metabolism(id)))
	}
	return c
}

// resolve applies one step's outcomes: picks the stochastic deaths, drops
// the dead, performs the divisions the capacity allows and swaps the result
// in as the live population. It returns the number of cells that died this
// step.
//
// Free slots are capacity minus the step-start population, so cells dying
// this step still occupy their slot. When more cells finish mitosis than
// there are slots, the daughters with the lowest seeded priority are born;
// the other parents stay in G1 as single cells and pay no division cost.
func (c *culture) resolve(outcomes []cell.Outcome, step int, dt float64) int {
	c.cull(outcomes, step, dt)

	c.dividers = c.dividers[:0]
	for i := range outcomes {
		if outcomes[i].Divides {
			c.dividers = append(c.dividers, admission{index: i, priority: c.priority(cell.ChildID(outcomes[i].Cell))})
		}
	}

	if cap(c.allowed) < len(outcomes) {
		c.allowed = make([]bool, len(outcomes))
	}
	c.allowed = c.allowed[:len(outcomes)]
	clear(c.allowed)

	slots := max(c.capacity-len(outcomes), 0)
	if len(c.dividers) > slots {
		slices.SortFunc(c.dividers, func(a, b admission) int {
			return cmp.Compare(a.priority, b.priority)
		})
		c.dividers = c.dividers[:slots]
	}
	for _, d := range c.dividers {
		c.allowed[d.index] = true
	}

	dead := 0
	c.survivors = c.survivors[:0]
	c.children = c.children[:0]
	for i := range outcomes {
		o := &outcomes[i]
		if o.Died {
			dead++
			continue
		}
		next := o.Cell
		if o.Divides {
			id := cell.ChildID(next)
			next.Mitoses++
			if c.allowed[i] {
				var child cell.Cell
				next, child = cell.Divide(next, id, c.metabolism(id))
				c.children = append(c.children, child)
			}
		}
		c.survivors = append(c.survivors, next)
	}
	c.survivors = append(c.survivors, c.children...)

	c.cells, c.survivors = c.survivors, c.cells
	return dead
}

// cull kills this step's stochastic deaths. The death count is the quantile
// of Binomial(exposed, mean death probability) at one draw per step, so the
// same run at a higher hazard never loses fewer cells from the same
// population. The victims are the exposed cells with the smallest death keys.
func (c *culture) cull(outcomes []cell.Outcome, step int, dt float64) {
	c.exposed = c.exposed[:0]
	var p float64
	for i := range outcomes {
		o := &outcomes[i]
		if o.Died || o.DeathRate <= 0 {
			continue
		}
		c.exposed = append(c.exposed, i)
		p += cell.DeathProbability(o.DeathRate, dt)
	}
	if len(c.exposed) == 0 {
		return
	}

	var src rand.PCG
	src.Seed(c.seed^streamDeath, uint64(step))
	n := binomialQuantile(len(c.exposed), p/float64(len(c.exposed)), uniform(&src))
	if n == 0 {
		return
	}

	slices.SortFunc(c.exposed, func(a, b int) int {
		if k := cmp.Compare(outcomes[a].DeathKey, outcomes[b].DeathKey); k != 0 {
			return k
		}
		return cmp.Compare(outcomes[a].Cell.ID, outcomes[b].Cell.ID)
	})
	for _, i := range c.exposed[:n] {
		outcomes[i].Kill()
	}
}

// metabolism draws the maintenance multiplier of the cell with the given ID.
func (c *culture) metabolism(id uint64) float64 {
	var src rand.PCG
	src.Seed(c.seed^streamMetabolism, id)
	return cell.MetabolismAt(uniform(&src))
}

// priority ranks a daughter for a contested slot. It depends only on the
// seed and the daughter's ID.
func (c *culture) priority(childID uint64) uint64 {
	var src rand.PCG
	src.Seed(c.seed^streamCapacity, childID)
	return src.Uint64()
}

// binomialQuantile returns the smallest k with P(Binomial(n, p) <= k) >= v.
// The walk starts at zero and stops at the quantile, so it costs about
// n*p iterations.
func binomialQuantile(n int, p, v float64) int {
	if n <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return n
	}
	logPMF := float64(n) * math.Log1p(-p)
	logOdds := math.Log(p) - math.Log1p(-p)
	cdf := 0.0
	for k := 0; k < n; k++ {
		cdf += math.Exp(logPMF)
		if cdf >= v {
			return k
		}
		logPMF += math.Log(float64(n-k)/float64(k+1)) + logOdds
	}
	return n
}

// snapshot aggregates the live population at time t.
func (c *culture) snapshot(t float64, dead int, lv microenv.Levels) models.Snapshot {
	s := models.Snapshot{
		Time:    t,
		Viable:  len(c.cells),
		Dead:    dead,
		Total:   len(c.cells) + dead,
		Glucose: lv.Glucose,
		Oxygen:  lv.Oxygen,
		Lactate: lv.Lactate,
	}

	var health, atp float64
	for i := range c.cells {
		s.Phases.Add(c.cells[i].Phase)
		health += c.cells[i].Health
		atp += c.cells[i].ATP
	}
	if s.Viable > 0 {
		s.AvgHealth = health / float64(s.Viable)
		s.AvgATP = atp / float64(s.Viable)
	}
	if s.Total > 0 {
		s.Viability = 100 * float64(s.Viable) / float64(s.Total)
	}
	return s
}
