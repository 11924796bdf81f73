// Package sweep runs independent diffusion campaigns across a temperature
// grid and fits the Arrhenius law to the converged estimates. Each campaign
// stays strictly sequential internally; only whole campaigns run in
// parallel.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/san-kum/iondiff/internal/campaign"
	"github.com/san-kum/iondiff/internal/msd"
)

// Boltzmann constant in eV/K.
const kBoltzmann = 8.617333e-5

var ErrTooFewPoints = errors.New("sweep: fewer than two usable points for the Arrhenius fit")

// Runner is one campaign. [campaign.Controller] satisfies it.
type Runner interface {
	Run(ctx context.Context) (*campaign.Result, error)
}

// Factory builds the campaign for one temperature.
type Factory func(temperature float64) (Runner, error)

type Point struct {
	Temperature float64
	Result      *campaign.Result
	Err         error
}

type Sweep struct {
	factory Factory
	temps   []float64
}

func New(factory Factory, temps []float64) *Sweep {
	return &Sweep{factory: factory, temps: temps}
}

// Run launches one campaign per temperature and waits for all of them.
// Per-campaign failures land in the point's Err; Run itself only fails
// when a campaign could not be constructed.
func (s *Sweep) Run(ctx context.Context) ([]Point, error) {
	if len(s.temps) == 0 {
		return nil, fmt.Errorf("sweep: no temperatures")
	}

	points := make([]Point, len(s.temps))
	runners := make([]Runner, len(s.temps))
	for i, t := range s.temps {
		r, err := s.factory(t)
		if err != nil {
			return nil, fmt.Errorf("sweep: campaign at %g K: %w", t, err)
		}
		runners[i] = r
	}

	var wg sync.WaitGroup
	for i := range s.temps {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			result, err := runners[idx].Run(ctx)
			points[idx] = Point{Temperature: s.temps[idx], Result: result, Err: err}
		}(i)
	}
	wg.Wait()

	sort.Slice(points, func(i, j int) bool { return points[i].Temperature < points[j].Temperature })
	return points, nil
}

// ArrheniusFit is the result of fitting D(T) = D0 * exp(-Ea / kB T).
type ArrheniusFit struct {
	// ActivationEnergy in eV.
	ActivationEnergy float64
	// Prefactor D0 in the estimator's diffusion units.
	Prefactor float64
	// Points is how many temperatures entered the fit.
	Points int
}

// Arrhenius fits ln D against 1/T over the points that produced a positive
// estimate for species. Failed campaigns and non-positive means are skipped.
func Arrhenius(points []Point, species string) (ArrheniusFit, error) {
	var xs, ys []float64
	for _, p := range points {
		if p.Err != nil || p.Result == nil {
			continue
		}
		e, ok := p.Result.Estimates[species]
		if !ok || e.Mean <= 0 || p.Temperature <= 0 {
			continue
		}
		xs = append(xs, 1/p.Temperature)
		ys = append(ys, math.Log(e.Mean))
	}
	if len(xs) < 2 {
		return ArrheniusFit{}, ErrTooFewPoints
	}

	slope, intercept, _, err := msd.Linfit(xs, ys)
	if err != nil {
		return ArrheniusFit{}, err
	}
	return ArrheniusFit{
		ActivationEnergy: -slope * kBoltzmann,
		Prefactor:        math.Exp(intercept),
		Points:           len(xs),
	}, nil
}
