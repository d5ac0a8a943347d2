package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/nstraffic/internal/config"
	"github.com/cxd309/nstraffic/internal/kinematics"
	"github.com/cxd309/nstraffic/internal/road"
	"github.com/cxd309/nstraffic/internal/vehicle"
)

// fixedSource never triggers a random slow-down or breakdown, always picks
// the first option and places cars in cell order.
type fixedSource struct{ draw float64 }

func (f fixedSource) Float64() float64 { return f.draw }
func (f fixedSource) IntN(int) int     { return 0 }
func (f fixedSource) Perm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

var (
	noLaneChange = vehicle.LaneRule{LookAhead: 0, Slack: 0, Symmetric: true}
	nsNoNoise    = kinematics.NagelSchreckenberg{MaxAcceleration: 1}
)

type carSetup struct {
	lane       road.Lane
	pos, speed int
	maxSpeed   int
}

func newState(t *testing.T, size int, rule vehicle.LaneRule, cars ...carSetup) (*RoadState, []*vehicle.Car) {
	t.Helper()
	rs, err := NewRoadState(size, 5, nsNoNoise, rule, fixedSource{draw: 0.99})
	require.NoError(t, err)
	out := make([]*vehicle.Car, len(cars))
	for i, cs := range cars {
		c, err := vehicle.New(vehicle.Spec{ID: i, Variant: vehicle.VariantFast, MaxSpeed: cs.maxSpeed}, cs.lane, cs.pos, cs.speed)
		require.NoError(t, err)
		require.NoError(t, rs.AddCar(c))
		out[i] = c
	}
	return rs, out
}

func TestSingleCarAccelerates(t *testing.T) {
	rs, cars := newState(t, 10, noLaneChange, carSetup{road.Right, 0, 3, 5})
	require.NoError(t, rs.Step())

	assert.Equal(t, 4, cars[0].Speed)
	assert.Equal(t, 4, cars[0].Position)
	assert.Equal(t, road.Right, cars[0].Lane)
	_, right := rs.Lanes()
	assert.Equal(t, 4, right[4])
}

func TestCarStopsAtGapLimit(t *testing.T) {
	rs, cars := newState(t, 10, noLaneChange,
		carSetup{road.Right, 0, 3, 5},
		carSetup{road.Right, 5, 0, 5},
	)
	require.NoError(t, rs.Step())

	assert.Equal(t, 4, cars[0].Speed)
	assert.Equal(t, 4, cars[0].Position)
	assert.Equal(t, 1, cars[1].Speed)
	assert.Equal(t, 6, cars[1].Position)
}

func TestCarStopsAtGapLimitWithLaneChangeRule(t *testing.T) {
	rule := vehicle.LaneRule{LookAhead: 7, Slack: 3, Symmetric: true}
	rs, cars := newState(t, 10, rule,
		carSetup{road.Right, 0, 3, 5},
		carSetup{road.Right, 5, 0, 5},
	)
	require.NoError(t, rs.Step())

	assert.Equal(t, 4, cars[0].Speed)
	assert.Equal(t, 4, cars[0].Position)
	assertConsistent(t, rs)
}

func TestEndCrossingCounted(t *testing.T) {
	rs, cars := newState(t, 10, noLaneChange, carSetup{road.Left, 8, 2, 5})
	require.NoError(t, rs.Step())

	assert.Equal(t, 3, cars[0].Speed)
	assert.Equal(t, 1, cars[0].Position)
	assert.Equal(t, 1, rs.Crossings())

	require.NoError(t, rs.Step())
	assert.Equal(t, 5, cars[0].Position)
	assert.Equal(t, 1, rs.Crossings())
}

func TestLaneChangeIsSeenByCarBehind(t *testing.T) {
	rule := vehicle.LaneRule{LookAhead: 7, Slack: 3, Symmetric: true}
	rs, cars := newState(t, 10, rule,
		carSetup{road.Right, 3, 0, 5}, // blocked by the next car, moves left
		carSetup{road.Right, 4, 0, 5},
		carSetup{road.Left, 0, 5, 5}, // fast car approaching in the target lane
	)
	require.NoError(t, rs.Step())

	a, b, c := cars[0], cars[1], cars[2]
	assert.Equal(t, road.Left, a.Lane)
	assert.Equal(t, 4, a.Position)
	assert.Equal(t, road.Right, b.Lane)
	assert.Equal(t, 5, b.Position)
	// c brakes for a instead of passing through it
	assert.Equal(t, 2, c.Speed)
	assert.Equal(t, 2, c.Position)
	assertConsistent(t, rs)
}

func TestBrokenCarCoastsBehindStoppedCar(t *testing.T) {
	rs, err := NewRoadState(10, 5, nsNoNoise, noLaneChange, fixedSource{draw: 0.99})
	require.NoError(t, err)

	broken, err := vehicle.New(vehicle.Spec{ID: 0, Variant: vehicle.VariantBroken, MaxSpeed: 5}, road.Right, 0, 3)
	require.NoError(t, err)
	broken.State = vehicle.StateBroken
	stopped, err := vehicle.New(vehicle.Spec{ID: 1, Variant: vehicle.VariantSlow, MaxSpeed: 3}, road.Right, 2, 0)
	require.NoError(t, err)
	require.NoError(t, rs.AddCar(broken))
	require.NoError(t, rs.AddCar(stopped))

	require.NoError(t, rs.Step())
	assert.Equal(t, road.Right, broken.Lane, "a broken-down car keeps its lane")
	assert.Equal(t, 1, broken.Speed, "coasting is capped by the gap")
	assert.Equal(t, 1, broken.Position)
	assert.Equal(t, 3, stopped.Position)
	assertConsistent(t, rs)
}

func TestStepRejectsSpeedAboveCeiling(t *testing.T) {
	capped := kinematics.NagelSchreckenberg{MaxAcceleration: 1, GlobalSpeedRule: true, GlobalMaxSpeed: 2}
	rs, err := NewRoadState(20, 5, capped, noLaneChange, fixedSource{draw: 0.99})
	require.NoError(t, err)

	// placed above the global cap; coasting brings it to 4, still above 2
	c, err := vehicle.New(vehicle.Spec{ID: 0, Variant: vehicle.VariantBroken, MaxSpeed: 5}, road.Right, 0, 5)
	require.NoError(t, err)
	c.State = vehicle.StateBroken
	require.NoError(t, rs.AddCar(c))

	assert.ErrorIs(t, rs.Step(), ErrInvariant)
}

// singleSnapshotSpeeds applies Car.AdaptSpeed to copies of every car against
// the current grid only.
func singleSnapshotSpeeds(rs *RoadState) []int {
	out := make([]int, len(rs.cars))
	for i, c := range rs.cars {
		cp := *c
		other := cp.Lane.Other()
		out[i] = cp.AdaptSpeed(rs.motion, rs.lanes,
			rs.cur.FindAhead(cp.Lane, cp.Position),
			rs.cur.FindAhead(other, cp.Position-1),
			rs.cur.FindBehind(other, cp.Position+1),
			fixedSource{draw: 0.99})
	}
	return out
}

func TestStepMatchesSingleSnapshotRuleWithoutLaneChanges(t *testing.T) {
	rs, cars := newState(t, 12, noLaneChange,
		carSetup{road.Right, 0, 2, 5},
		carSetup{road.Right, 4, 1, 5},
		carSetup{road.Right, 7, 0, 5},
		carSetup{road.Left, 2, 3, 5},
	)
	want := singleSnapshotSpeeds(rs)
	require.NoError(t, rs.Step())

	for i, c := range cars {
		assert.Equal(t, want[i], c.Speed, "car %d", i)
	}
	assert.Equal(t, []int{3, 2, 1, 4}, want)
}

func TestAddCarRejectsCollision(t *testing.T) {
	rs, _ := newState(t, 10, noLaneChange, carSetup{road.Right, 2, 0, 5})
	c, err := vehicle.New(vehicle.Spec{ID: 9, Variant: vehicle.VariantSlow, MaxSpeed: 3}, road.Right, 2, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, rs.AddCar(c), road.ErrCollision)
}

func TestNewSimulationRejectsOvercrowding(t *testing.T) {
	p := config.DefaultParams()
	p.RoadSize = 10
	p.NumFastCars = 15
	p.NumSlowCars = 10
	_, err := NewSimulation(p, NewSource(1, 0))
	assert.ErrorIs(t, err, config.ErrCapacity)
}

func TestPopulation(t *testing.T) {
	p := config.DefaultParams()
	p.RoadSize = 100
	p.NumFastCars = 31
	p.NumSlowCars = 20
	p.HasBrokenCar = true

	sim, err := NewSimulation(p, NewSource(7, 0))
	require.NoError(t, err)

	cars := sim.Snapshot()
	require.Len(t, cars, 51)

	counts := map[vehicle.Variant]int{}
	lanes := map[road.Lane]int{}
	for _, c := range cars {
		counts[c.Variant]++
		lanes[c.Lane]++
		maxSpeed := p.MaxSpeedSlow
		if c.Variant == vehicle.VariantFast {
			maxSpeed = p.MaxSpeedFast
		}
		limit := min(maxSpeed, p.StartSpeedLimit())
		assert.GreaterOrEqual(t, c.Speed, max(limit-1, 0))
		assert.LessOrEqual(t, c.Speed, limit)
		assert.Equal(t, vehicle.StateNormal, c.State)
	}
	assert.Equal(t, 31, counts[vehicle.VariantFast])
	assert.Equal(t, 19, counts[vehicle.VariantSlow])
	assert.Equal(t, 1, counts[vehicle.VariantBroken])
	assert.Equal(t, 25, lanes[road.Left])
	assert.Equal(t, 26, lanes[road.Right])
	assertConsistent(t, sim.state)
}

func TestPopulationWithFixedSource(t *testing.T) {
	p := config.DefaultParams()
	p.RoadSize = 10
	p.NumFastCars = 2
	p.NumSlowCars = 2
	p.HasBrokenCar = true

	sim, err := NewSimulation(p, fixedSource{draw: 0.99})
	require.NoError(t, err)

	// IntN always 0: right lane first until its quota is used, slow type
	// first until the slow count is used.
	cars := sim.Snapshot()
	assert.Equal(t, road.Right, cars[0].Lane)
	assert.Equal(t, 0, cars[0].Position)
	assert.Equal(t, vehicle.VariantBroken, cars[0].Variant)
	assert.Equal(t, vehicle.VariantSlow, cars[1].Variant)
	assert.Equal(t, road.Right, cars[1].Lane)
	assert.Equal(t, 1, cars[1].Position)
	assert.Equal(t, road.Left, cars[2].Lane)
	assert.Equal(t, 0, cars[2].Position)
	assert.Equal(t, vehicle.VariantFast, cars[3].Variant)
	assert.Equal(t, 5, cars[3].Speed)
}

// assertConsistent checks the grid against the car registry: one car per
// cell, every car's cell holds its speed, speeds within bounds.
func assertConsistent(t *testing.T, rs *RoadState) {
	t.Helper()
	left, right := rs.Lanes()
	occupied := 0
	for i := range left {
		if left[i] != road.Empty {
			occupied++
		}
		if right[i] != road.Empty {
			occupied++
		}
	}
	require.Equal(t, len(rs.cars), occupied, "grid cell count differs from car count")

	seen := map[[2]int]int{}
	for _, c := range rs.cars {
		key := [2]int{int(c.Lane), c.Position}
		if other, dup := seen[key]; dup {
			t.Fatalf("cars %d and %d share %s/%d", other, c.ID, c.Lane, c.Position)
		}
		seen[key] = c.ID
		cells := right
		if c.Lane == road.Left {
			cells = left
		}
		require.Equal(t, c.Speed, cells[c.Position], "car %d", c.ID)
		require.GreaterOrEqual(t, c.Speed, 0)
		require.LessOrEqual(t, c.Speed, c.MaxSpeed)
	}
}

func TestInvariantsHoldOverRandomRuns(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(p *config.Params)
	}{
		{"symmetric", func(p *config.Params) {}},
		{"asymmetric", func(p *config.Params) { p.Symmetric = false }},
		{"dense", func(p *config.Params) { p.NumFastCars = 80; p.NumSlowCars = 70 }},
		{"broken car", func(p *config.Params) { p.HasBrokenCar = true; p.RepairProb = 0.1 }},
		{"global speed rule", func(p *config.Params) { p.GlobalSpeedRule = true; p.GlobalMaxSpeed = 2 }},
		{"no slack", func(p *config.Params) { p.Slack = 0; p.LookAhead = 16 }},
		{"fast acceleration", func(p *config.Params) { p.MaxAcceleration = 3; p.MaxSpeedFast = 9 }},
		{"dense broken car", func(p *config.Params) {
			p.NumSlowCars = 100
			p.HasBrokenCar = true
			p.RepairProb = 0.5
			p.MaxSpeedSlow = 9
			p.MaxSpeedFast = 11
		}},
		{"dense broken car without slack", func(p *config.Params) {
			p.NumSlowCars = 100
			p.HasBrokenCar = true
			p.RepairProb = 0.5
			p.Slack = 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := config.DefaultParams()
			p.RoadSize = 100
			p.NumFastCars = 30
			p.NumSlowCars = 20
			tc.mutate(&p)

			for seed := uint64(1); seed <= 20; seed++ {
				sim, err := NewSimulation(p, NewSource(seed, 0))
				require.NoError(t, err)
				for range 200 {
					require.NoError(t, sim.Step())
					assertConsistent(t, sim.state)
					if p.GlobalSpeedRule {
						for _, c := range sim.state.cars {
							require.LessOrEqual(t, c.Speed, p.GlobalMaxSpeed)
						}
					}
				}
			}
		})
	}
}

func TestDeterministicUnderFixedSeed(t *testing.T) {
	p := config.DefaultParams()
	p.RoadSize = 80
	p.NumFastCars = 20
	p.NumSlowCars = 15
	p.HasBrokenCar = true

	history := func() [][]int {
		sim, err := NewSimulation(p, NewSource(99, 3))
		require.NoError(t, err)
		var h [][]int
		for range 100 {
			require.NoError(t, sim.Step())
			left, right := sim.Lanes()
			h = append(h, left, right)
		}
		return h
	}
	assert.Equal(t, history(), history())
}

func TestRunResult(t *testing.T) {
	p := config.DefaultParams()
	p.RoadSize = 10
	p.NumFastCars = 1
	p.NumSlowCars = 1
	p.HasBrokenCar = true
	p.BreakDownProb = 0
	p.Fluctuation = 0

	sim, err := NewSimulation(p, fixedSource{draw: 0.99})
	require.NoError(t, err)

	res, err := sim.Run(10)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Ticks)
	assert.Equal(t, 1, res.NumFastCars)
	assert.Equal(t, 0, res.NumSlowCars)
	assert.Equal(t, res.FastDistance, res.TotalDistance)
	assert.Equal(t, res.FastDistance, res.BestFastDistance)
	assert.Equal(t, res.FastDistance, res.WorstFastDistance)
	assert.Positive(t, res.TotalDistance)
	require.Len(t, res.MaxReachedSpeeds, 2)

	var broken vehicle.CarLog
	for _, c := range sim.Snapshot() {
		if c.Variant == vehicle.VariantBroken {
			broken = c
		}
	}
	assert.Positive(t, broken.TraveledDistance)
	assert.Equal(t, res.TotalDistance+broken.TraveledDistance, sumDistance(sim.Snapshot()))
}

func sumDistance(cars []vehicle.CarLog) int {
	total := 0
	for _, c := range cars {
		total += c.TraveledDistance
	}
	return total
}

func TestRunContextCancelled(t *testing.T) {
	p := config.DefaultParams()
	p.RoadSize = 20
	p.NumFastCars = 4
	sim, err := NewSimulation(p, NewSource(1, 0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.RunContext(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sim.Tick())
}

func TestRunJSON(t *testing.T) {
	input := `{
		"simulation_id": "smoke",
		"record_lanes": true,
		"params": {"road_size": 30, "num_fast_cars": 6, "num_slow_cars": 4, "ticks": 5, "seed": 3}
	}`
	out, err := RunJSON(input)
	require.NoError(t, err)

	var log SimulationLog
	require.NoError(t, json.Unmarshal([]byte(out), &log))
	assert.Equal(t, "smoke", log.SimulationID)
	assert.Equal(t, 5, log.Result.Ticks)
	assert.Len(t, log.Output, 5)
	assert.Len(t, log.Cars, 10)
	assert.Len(t, log.Output[0].Left, 30)
	// defaults fill the rest of the parameters
	assert.Equal(t, 7, log.Params.LookAhead)

	again, err := RunJSON(input)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestRunJSONErrors(t *testing.T) {
	_, err := RunJSON("{not json")
	assert.Error(t, err)

	_, err = RunJSON(`{"params": {"road_size": 2, "num_fast_cars": 10}}`)
	assert.ErrorIs(t, err, config.ErrCapacity)
}
