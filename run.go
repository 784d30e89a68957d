package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aeroml/flightdelay/pkg/config"
	"github.com/aeroml/flightdelay/pkg/models"
	dataset "github.com/aeroml/flightdelay/pipelines/Dataset"
	features "github.com/aeroml/flightdelay/pipelines/Features"
	ml "github.com/aeroml/flightdelay/pipelines/ML"
	storage "github.com/aeroml/flightdelay/pipelines/Storage"
	"github.com/aeroml/flightdelay/utils"
)

// runPipeline executes one full training run: ingest, derive, clean,
// encode, split, train the configured families, evaluate on the held-out
// partition, and optionally score one unseen flight. The returned report
// is complete even when some families failed; an error means the run
// produced no usable model at all.
func runPipeline(cfg *config.Config) (*models.RunReport, error) {
	logger := utils.GetLogger()
	start := time.Now()
	report := models.NewRunReport(cfg.Data.Path)

	source := dataset.NewCSVSource(cfg.Data.Path)
	source.MaxRows = cfg.Data.MaxRows
	records, loadReport, err := source.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load flight data: %w", err)
	}
	report.RowsTotal = loadReport.RowsTotal
	report.RowsEligible = loadReport.RowsEligible
	report.RowsCancelled = loadReport.RowsCancelled
	report.RowsDiverted = loadReport.RowsDiverted
	report.RowsMissingLabel = loadReport.RowsMissingLabel
	logger.Info("Loaded flight records",
		utils.String("path", cfg.Data.Path),
		utils.Int("total", loadReport.RowsTotal),
		utils.Int("eligible", loadReport.RowsEligible),
		utils.Int("cancelled", loadReport.RowsCancelled),
		utils.Int("diverted", loadReport.RowsDiverted),
		utils.Int("missing_label", loadReport.RowsMissingLabel))

	if summary, err := dataset.Summarize(records); err != nil {
		logger.Warn("Dataset summary failed", utils.String("error", err.Error()))
	} else {
		fmt.Print(summary.Format())
	}

	table := features.BuildTable(records)
	report.Missingness = table.MissingnessReport()
	for _, cm := range report.Missingness {
		if cm.Missing > 0 {
			logger.Info("Column has missing values",
				utils.String("column", cm.Column),
				utils.Int("missing", cm.Missing),
				utils.Float("percent", cm.Percent))
		}
	}

	cleaned, cleanReport, err := features.Clean(table, features.DefaultSigmas)
	if err != nil {
		return nil, fmt.Errorf("failed to clean feature table: %w", err)
	}
	report.OutlierRowsDropped = cleanReport.OutlierRows
	report.IncompleteRowsDropped = cleanReport.IncompleteRows
	logger.Info("Cleaned feature table",
		utils.Int("rows_in", cleanReport.RowsIn),
		utils.Int("rows_out", cleanReport.RowsOut),
		utils.Int("outlier_rows", cleanReport.OutlierRows),
		utils.Int("incomplete_rows", cleanReport.IncompleteRows))

	encoder, err := features.FitEncoder(cleaned, features.CategoricalColumns)
	if err != nil {
		return nil, fmt.Errorf("failed to fit encoder: %w", err)
	}
	if err := encoder.Save(cfg.Storage.EncoderPath); err != nil {
		return nil, fmt.Errorf("failed to save encoder: %w", err)
	}
	logger.Info("Fitted categorical encoder",
		utils.String("saved_to", cfg.Storage.EncoderPath),
		utils.Int("carriers", len(encoder.Vocabulary(features.ColCarrier))),
		utils.Int("origins", len(encoder.Vocabulary(features.ColOrigin))),
		utils.Int("destinations", len(encoder.Vocabulary(features.ColDestination))))

	X, y, featureNames, err := encoder.Matrix(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to encode feature table: %w", err)
	}

	splitter := ml.NewSplitter(cfg.Split.TrainFraction, cfg.Split.Seed)
	trainIdx, testIdx, err := splitter.Split(len(X))
	if err != nil {
		return nil, fmt.Errorf("failed to split rows: %w", err)
	}
	XTrain, yTrain := ml.Gather(X, y, trainIdx)
	XTest, yTest := ml.Gather(X, y, testIdx)
	report.TrainFraction = splitter.TrainFraction
	report.SplitSeed = splitter.Seed
	report.TrainingSeed = cfg.Training.Seed
	report.CVFolds = cfg.Training.Folds
	report.TrainRows = len(trainIdx)
	report.TestRows = len(testIdx)
	logger.Info("Split encoded rows",
		utils.Int("train", len(trainIdx)),
		utils.Int("test", len(testIdx)),
		utils.Float("train_fraction", splitter.TrainFraction))

	families, err := ml.Families(cfg.Training.Families, cfg.Training.SubsampleRows)
	if err != nil {
		return nil, err
	}
	results, failures := ml.TrainFamilies(families, XTrain, yTrain, featureNames,
		cfg.Training.Folds, cfg.Training.Seed)
	report.Failures = failures

	fitted := make(map[models.Family]ml.BinaryClassifier, len(results))
	for _, res := range results {
		fitted[res.Family] = res.Model
	}

	for _, res := range results {
		eval, err := ml.Evaluate(res.Model, XTest, yTest, cfg.Training.Threshold)
		if err != nil {
			logger.Error("Held-out evaluation failed", err,
				utils.String("family", string(res.Family)))
			report.Failures = append(report.Failures, models.ModelFailure{
				Family: res.Family,
				Error:  fmt.Sprintf("evaluation: %v", err),
			})
			continue
		}
		report.Models = append(report.Models, models.ModelReport{
			Family:            res.Family,
			BestParams:        res.Best.String(),
			MeanCVAUC:         res.MeanAUC,
			TestAUC:           eval.AUC,
			Confusion:         eval.Confusion,
			ROC:               eval.ROC,
			FeatureImportance: res.Model.Importance(),
			CVTable:           res.CVTable,
			TrainRows:         res.TrainRows,
			ElapsedMS:         res.Elapsed.Milliseconds(),
		})
	}
	if len(report.Models) == 0 {
		return nil, fmt.Errorf("all model families failed: %s", formatFailures(report.Failures))
	}

	if cfg.Inference.Enabled {
		result, err := scoreConfiguredFlight(cfg.Inference.Record, report, fitted, encoder, cfg.Training.Threshold)
		if err != nil {
			return nil, fmt.Errorf("failed to score configured flight: %w", err)
		}
		report.Inference = result
		logger.Info("Scored configured flight",
			utils.String("family", string(result.Family)),
			utils.Float("probability", result.Probability),
			utils.Bool("delayed", result.Delayed))
	}

	report.ElapsedMS = time.Since(start).Milliseconds()
	return report, nil
}

// scoreConfiguredFlight encodes the config-supplied flight through the
// fitted map and scores it with the best held-out model. A carrier,
// airport, or occasion absent from training fails the whole run.
func scoreConfiguredFlight(in config.FlightInput, report *models.RunReport, fitted map[models.Family]ml.BinaryClassifier, encoder *features.Encoder, threshold float64) (*models.InferenceResult, error) {
	best := report.BestModel()
	if best == nil {
		return nil, fmt.Errorf("no trained model available")
	}
	model, ok := fitted[best.Family]
	if !ok {
		return nil, fmt.Errorf("no fitted model for family %s", best.Family)
	}
	record, err := recordFromInput(in)
	if err != nil {
		return nil, err
	}
	obs, err := ml.ObservationFromRecord(record)
	if err != nil {
		return nil, err
	}
	return ml.NewScorer(best.Family, model, encoder, threshold).Score(obs)
}

// recordFromInput converts the YAML inference record into a FlightRecord
func recordFromInput(in config.FlightInput) (dataset.FlightRecord, error) {
	date, err := time.Parse("2006-01-02", in.Date)
	if err != nil {
		return dataset.FlightRecord{}, fmt.Errorf("inference record date %q must be YYYY-MM-DD: %w", in.Date, err)
	}
	return dataset.FlightRecord{
		Carrier:     in.Carrier,
		Origin:      in.Origin,
		Destination: in.Destination,
		DepTime:     in.DepTime,
		ArrTime:     in.ArrTime,
		TaxiOut:     in.TaxiOut,
		TaxiIn:      in.TaxiIn,
		AirTime:     in.AirTime,
		Distance:    in.Distance,
		Date:        date,
	}, nil
}

func formatFailures(failures []models.ModelFailure) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Family, f.Error))
	}
	return strings.Join(parts, "; ")
}

// printReport renders the run report for the terminal
func printReport(report *models.RunReport) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n=== Run %s ===\n", report.ID)
	fmt.Fprintf(&b, "data: %s\n", report.DataPath)
	fmt.Fprintf(&b, "rows: %d total, %d eligible (%d cancelled, %d diverted, %d missing label)\n",
		report.RowsTotal, report.RowsEligible, report.RowsCancelled,
		report.RowsDiverted, report.RowsMissingLabel)
	fmt.Fprintf(&b, "dropped: %d outlier rows, %d incomplete rows\n",
		report.OutlierRowsDropped, report.IncompleteRowsDropped)
	fmt.Fprintf(&b, "split: %d train / %d test (fraction %.2f, seed %d)\n",
		report.TrainRows, report.TestRows, report.TrainFraction, report.SplitSeed)

	for _, m := range report.Models {
		fmt.Fprintf(&b, "\n--- %s ---\n", m.Family)
		fmt.Fprintf(&b, "best params: %s\n", m.BestParams)
		fmt.Fprintf(&b, "mean CV AUC: %.4f   held-out AUC: %.4f   fit on %d rows in %dms\n",
			m.MeanCVAUC, m.TestAUC, m.TrainRows, m.ElapsedMS)
		b.WriteString(ml.FormatConfusion(m.Confusion))
		b.WriteString("\n")
		b.WriteString(formatImportance(m.FeatureImportance, 5))
	}

	for _, f := range report.Failures {
		fmt.Fprintf(&b, "\n--- %s ---\nfailed: %s\n", f.Family, f.Error)
	}

	if best := report.BestModel(); best != nil {
		fmt.Fprintf(&b, "\nbest model: %s (held-out AUC %.4f)\n", best.Family, best.TestAUC)
	}
	if report.Inference != nil {
		fmt.Fprintf(&b, "scored flight: P(delayed)=%.4f delayed=%t (model %s)\n",
			report.Inference.Probability, report.Inference.Delayed, report.Inference.Family)
	}
	fmt.Fprintf(&b, "elapsed: %dms\n", report.ElapsedMS)
	fmt.Print(b.String())
}

// formatImportance renders the top-n features by importance weight
func formatImportance(importance map[string]float64, n int) string {
	if len(importance) == 0 {
		return ""
	}
	type pair struct {
		name   string
		weight float64
	}
	pairs := make([]pair, 0, len(importance))
	for name, w := range importance {
		pairs = append(pairs, pair{name, w})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].weight != pairs[j].weight {
			return pairs[i].weight > pairs[j].weight
		}
		return pairs[i].name < pairs[j].name
	})
	if n > len(pairs) {
		n = len(pairs)
	}
	var b strings.Builder
	b.WriteString("top features:\n")
	for _, p := range pairs[:n] {
		fmt.Fprintf(&b, "  %-20s %.4f\n", p.name, p.weight)
	}
	return b.String()
}

// writeReportJSON exports the run report to a JSON file
func writeReportJSON(path string, report *models.RunReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// storeRun persists the report when the run store is enabled
func storeRun(cfg *config.Config, report *models.RunReport) error {
	if !cfg.Storage.Enabled {
		return nil
	}
	store, err := storage.NewRunStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	defer store.Close()
	if err := store.SaveRun(context.Background(), report); err != nil {
		return fmt.Errorf("failed to store run: %w", err)
	}
	utils.GetLogger().Info("Stored run report",
		utils.String("run_id", report.ID),
		utils.String("db", cfg.Storage.Path))
	return nil
}
