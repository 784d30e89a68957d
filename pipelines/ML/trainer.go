package ml

import (
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/aeroml/flightdelay/pkg/models"
	"github.com/aeroml/flightdelay/utils"
)

// ErrNoViableHyperparameters reports a grid search where every point
// failed, which is fatal for that family only.
var ErrNoViableHyperparameters = errors.New("no viable hyperparameters")

// DefaultCVFolds is the stratified fold count of every grid search
const DefaultCVFolds = 10

// DefaultSubsampleRows caps the rows the tree ensembles train on. The
// cap takes the first rows of the training partition in draw order; it
// is a deliberate speed/accuracy tradeoff, not a bug to fix.
const DefaultSubsampleRows = 10000

// GridPoint is one hyperparameter combination. Params carries the
// numeric settings, Labels the nominal ones.
type GridPoint struct {
	Params map[string]float64
	Labels map[string]string
}

// String renders the point as sorted key=value pairs
func (p GridPoint) String() string {
	parts := make([]string, 0, len(p.Params)+len(p.Labels))
	for k, v := range p.Params {
		parts = append(parts, fmt.Sprintf("%s=%g", k, v))
	}
	for k, v := range p.Labels {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

// ModelFamily enumerates a hyperparameter grid and constructs
// candidates for it
type ModelFamily interface {
	Name() models.Family
	Grid() []GridPoint
	New(point GridPoint, seed int64) BinaryClassifier
	// MaxTrainRows caps the training rows the family sees; 0 means the
	// full training partition.
	MaxTrainRows() int
}

// SearchResult is the outcome of one family's grid search
type SearchResult struct {
	Family    models.Family
	Best      GridPoint
	Model     BinaryClassifier
	MeanAUC   float64
	CVTable   []models.CVRow
	TrainRows int
	Elapsed   time.Duration
}

// GridSearch cross-validates every grid point of one family on the
// training rows and refits the winner on all of them. Folds are built
// once and shared by all points; each point gets its own derived seed
// so results do not depend on evaluation order. A point whose fit,
// scoring or fold makeup fails is skipped; only a fully failed grid
// aborts the family.
func GridSearch(family ModelFamily, X [][]float64, y []bool, featureNames []string, folds int, seed int64) (*SearchResult, error) {
	start := time.Now()
	log := utils.GetLogger()
	name := family.Name()

	if len(X) != len(y) {
		return nil, fmt.Errorf("%s: X has %d rows but y has %d labels", name, len(X), len(y))
	}
	if folds <= 1 {
		folds = DefaultCVFolds
	}
	if limit := family.MaxTrainRows(); limit > 0 && limit < len(X) {
		X, y = X[:limit], y[:limit]
	}

	foldSets, err := StratifiedFolds(y, folds, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	trainSets := foldComplements(len(y), foldSets)

	grid := family.Grid()
	log.Info("Starting grid search",
		utils.String("family", string(name)),
		utils.Int("grid_points", len(grid)),
		utils.Int("rows", len(X)),
		utils.Int("folds", folds))

	type outcome struct {
		aucs []float64
		mean float64
		err  error
	}
	outcomes := make([]outcome, len(grid))

	// Points are independent; a bounded pool keeps the tree ensembles
	// from oversubscribing the scheduler.
	var wg sync.WaitGroup
	work := make(chan int)
	workers := runtime.GOMAXPROCS(0)
	if workers > len(grid) {
		workers = len(grid)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pi := range work {
				aucs, err := crossValidate(family, grid[pi], X, y, featureNames, foldSets, trainSets, seed+int64(pi))
				if err != nil {
					outcomes[pi] = outcome{err: err}
					continue
				}
				outcomes[pi] = outcome{aucs: aucs, mean: stat.Mean(aucs, nil)}
			}
		}()
	}
	for pi := range grid {
		work <- pi
	}
	close(work)
	wg.Wait()

	table := make([]models.CVRow, len(grid))
	bestIdx := -1
	failed := 0
	for pi, o := range outcomes {
		row := models.CVRow{Params: grid[pi].String(), FoldAUCs: o.aucs, MeanAUC: o.mean}
		if o.err != nil {
			row.Error = o.err.Error()
			failed++
		} else if bestIdx < 0 || o.mean > outcomes[bestIdx].mean {
			bestIdx = pi
		}
		table[pi] = row
	}
	if bestIdx < 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoViableHyperparameters)
	}
	if failed > 0 {
		log.Warn("Some grid points failed",
			utils.String("family", string(name)),
			utils.Int("failed", failed),
			utils.Int("total", len(grid)))
	}

	best := grid[bestIdx]
	model := family.New(best, seed+int64(bestIdx))
	if err := model.Fit(X, y, featureNames); err != nil {
		return nil, fmt.Errorf("%s: refit of %s: %w", name, best, err)
	}

	elapsed := time.Since(start)
	log.Info("Grid search finished",
		utils.String("family", string(name)),
		utils.String("best", best.String()),
		utils.Float("mean_cv_auc", outcomes[bestIdx].mean),
		utils.Duration("elapsed", elapsed))

	return &SearchResult{
		Family:    name,
		Best:      best,
		Model:     model,
		MeanAUC:   outcomes[bestIdx].mean,
		CVTable:   table,
		TrainRows: len(X),
		Elapsed:   elapsed,
	}, nil
}

// crossValidate fits one candidate per fold and returns the held-out
// fold AUCs. Any fold failure fails the whole point.
func crossValidate(family ModelFamily, point GridPoint, X [][]float64, y []bool, featureNames []string, foldSets, trainSets [][]int, seed int64) ([]float64, error) {
	aucs := make([]float64, 0, len(foldSets))
	for fi := range foldSets {
		trainX, trainY := Gather(X, y, trainSets[fi])
		validX, validY := Gather(X, y, foldSets[fi])

		model := family.New(point, seed)
		if err := model.Fit(trainX, trainY, featureNames); err != nil {
			return nil, fmt.Errorf("fold %d: %w", fi, err)
		}
		scores, err := PredictProba(model, validX)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", fi, err)
		}
		_, auc, err := ROCCurve(validY, scores)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", fi, err)
		}
		aucs = append(aucs, auc)
	}
	return aucs, nil
}

// TrainFamilies runs every family's grid search in parallel over the
// same training rows and encoding. A family that fails is reported and
// does not stop the others.
func TrainFamilies(families []ModelFamily, X [][]float64, y []bool, featureNames []string, folds int, seed int64) ([]*SearchResult, []models.ModelFailure) {
	results := make([]*SearchResult, len(families))
	errs := make([]error, len(families))

	var wg sync.WaitGroup
	for i, family := range families {
		wg.Add(1)
		go func(fi int, f ModelFamily) {
			defer wg.Done()
			// Families get disjoint seed ranges so point seeds never
			// collide across them.
			results[fi], errs[fi] = GridSearch(f, X, y, featureNames, folds, seed+int64(fi)*1009)
		}(i, family)
	}
	wg.Wait()

	kept := make([]*SearchResult, 0, len(families))
	var failures []models.ModelFailure
	for i, family := range families {
		if errs[i] != nil {
			utils.GetLogger().Error("Family training failed", errs[i],
				utils.String("family", string(family.Name())))
			failures = append(failures, models.ModelFailure{
				Family: family.Name(),
				Error:  errs[i].Error(),
			})
			continue
		}
		kept = append(kept, results[i])
	}
	return kept, failures
}
