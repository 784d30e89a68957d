package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aeroml/flightdelay/pkg/models"
)

// ErrRunNotFound reports a run id with no stored report
var ErrRunNotFound = errors.New("run not found")

// RunStore persists pipeline runs and their per-family model reports in
// SQLite, so past experiments stay comparable across invocations
type RunStore struct {
	db *sql.DB
}

// NewRunStore opens the run database at dbPath, creating the schema on
// first use
func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode allows concurrent readers; keep the pool small to avoid
	// writer lock contention.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	store := &RunStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// initSchema creates the run tables
func (s *RunStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		data_path TEXT NOT NULL,
		rows_total INTEGER NOT NULL,
		rows_eligible INTEGER NOT NULL,
		rows_cancelled INTEGER NOT NULL,
		rows_diverted INTEGER NOT NULL,
		rows_missing_label INTEGER NOT NULL,
		outlier_rows_dropped INTEGER NOT NULL,
		incomplete_rows_dropped INTEGER NOT NULL,
		missingness TEXT,
		train_fraction REAL NOT NULL,
		split_seed INTEGER NOT NULL,
		training_seed INTEGER NOT NULL,
		cv_folds INTEGER NOT NULL,
		train_rows INTEGER NOT NULL,
		test_rows INTEGER NOT NULL,
		inference TEXT,
		elapsed_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS model_reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		family TEXT NOT NULL,
		best_params TEXT NOT NULL,
		mean_cv_auc REAL NOT NULL,
		test_auc REAL NOT NULL,
		true_positives INTEGER NOT NULL,
		false_positives INTEGER NOT NULL,
		true_negatives INTEGER NOT NULL,
		false_negatives INTEGER NOT NULL,
		feature_importance TEXT,
		roc TEXT,
		cv_table TEXT,
		train_rows INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
		UNIQUE(run_id, family)
	);

	CREATE TABLE IF NOT EXISTS run_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		family TEXT NOT NULL,
		error TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_model_reports_run ON model_reports(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun writes a complete run report in one transaction
func (s *RunStore) SaveRun(ctx context.Context, report *models.RunReport) error {
	if report == nil || report.ID == "" {
		return fmt.Errorf("run report must have an id")
	}

	missingness, err := json.Marshal(report.Missingness)
	if err != nil {
		return fmt.Errorf("failed to marshal missingness: %w", err)
	}
	var inference []byte
	if report.Inference != nil {
		inference, err = json.Marshal(report.Inference)
		if err != nil {
			return fmt.Errorf("failed to marshal inference: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, created_at, data_path,
			rows_total, rows_eligible, rows_cancelled, rows_diverted, rows_missing_label,
			outlier_rows_dropped, incomplete_rows_dropped, missingness,
			train_fraction, split_seed, training_seed, cv_folds, train_rows, test_rows,
			inference, elapsed_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.CreatedAt, report.DataPath,
		report.RowsTotal, report.RowsEligible, report.RowsCancelled,
		report.RowsDiverted, report.RowsMissingLabel,
		report.OutlierRowsDropped, report.IncompleteRowsDropped, string(missingness),
		report.TrainFraction, report.SplitSeed, report.TrainingSeed,
		report.CVFolds, report.TrainRows, report.TestRows,
		nullableText(inference), report.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, m := range report.Models {
		importance, err := json.Marshal(m.FeatureImportance)
		if err != nil {
			return fmt.Errorf("failed to marshal importance: %w", err)
		}
		roc, err := json.Marshal(m.ROC)
		if err != nil {
			return fmt.Errorf("failed to marshal roc: %w", err)
		}
		cvTable, err := json.Marshal(m.CVTable)
		if err != nil {
			return fmt.Errorf("failed to marshal cv table: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO model_reports (
				run_id, family, best_params, mean_cv_auc, test_auc,
				true_positives, false_positives, true_negatives, false_negatives,
				feature_importance, roc, cv_table, train_rows, elapsed_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.ID, string(m.Family), m.BestParams, m.MeanCVAUC, m.TestAUC,
			m.Confusion.TruePositives, m.Confusion.FalsePositives,
			m.Confusion.TrueNegatives, m.Confusion.FalseNegatives,
			string(importance), string(roc), string(cvTable),
			m.TrainRows, m.ElapsedMS,
		)
		if err != nil {
			return fmt.Errorf("failed to insert model report for %s: %w", m.Family, err)
		}
	}

	for _, f := range report.Failures {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_failures (run_id, family, error) VALUES (?, ?, ?)`,
			report.ID, string(f.Family), f.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert failure for %s: %w", f.Family, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun loads a stored run with its model reports and failures
func (s *RunStore) GetRun(ctx context.Context, id string) (*models.RunReport, error) {
	report := &models.RunReport{}
	var missingness string
	var inference sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, data_path,
			rows_total, rows_eligible, rows_cancelled, rows_diverted, rows_missing_label,
			outlier_rows_dropped, incomplete_rows_dropped, missingness,
			train_fraction, split_seed, training_seed, cv_folds, train_rows, test_rows,
			inference, elapsed_ms
		FROM runs WHERE id = ?`, id,
	).Scan(
		&report.ID, &report.CreatedAt, &report.DataPath,
		&report.RowsTotal, &report.RowsEligible, &report.RowsCancelled,
		&report.RowsDiverted, &report.RowsMissingLabel,
		&report.OutlierRowsDropped, &report.IncompleteRowsDropped, &missingness,
		&report.TrainFraction, &report.SplitSeed, &report.TrainingSeed,
		&report.CVFolds, &report.TrainRows, &report.TestRows,
		&inference, &report.ElapsedMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	if missingness != "" {
		if err := json.Unmarshal([]byte(missingness), &report.Missingness); err != nil {
			return nil, fmt.Errorf("failed to parse missingness: %w", err)
		}
	}
	if inference.Valid && inference.String != "" {
		report.Inference = &models.InferenceResult{}
		if err := json.Unmarshal([]byte(inference.String), report.Inference); err != nil {
			return nil, fmt.Errorf("failed to parse inference: %w", err)
		}
	}

	if report.Models, err = s.modelReports(ctx, id); err != nil {
		return nil, err
	}
	if report.Failures, err = s.failures(ctx, id); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *RunStore) modelReports(ctx context.Context, runID string) ([]models.ModelReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT family, best_params, mean_cv_auc, test_auc,
			true_positives, false_positives, true_negatives, false_negatives,
			feature_importance, roc, cv_table, train_rows, elapsed_ms
		FROM model_reports WHERE run_id = ? ORDER BY test_auc DESC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load model reports: %w", err)
	}
	defer rows.Close()

	var out []models.ModelReport
	for rows.Next() {
		var m models.ModelReport
		var importance, roc, cvTable string
		if err := rows.Scan(
			&m.Family, &m.BestParams, &m.MeanCVAUC, &m.TestAUC,
			&m.Confusion.TruePositives, &m.Confusion.FalsePositives,
			&m.Confusion.TrueNegatives, &m.Confusion.FalseNegatives,
			&importance, &roc, &cvTable, &m.TrainRows, &m.ElapsedMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan model report: %w", err)
		}
		if importance != "" && importance != "null" {
			if err := json.Unmarshal([]byte(importance), &m.FeatureImportance); err != nil {
				return nil, fmt.Errorf("failed to parse importance: %w", err)
			}
		}
		if roc != "" && roc != "null" {
			if err := json.Unmarshal([]byte(roc), &m.ROC); err != nil {
				return nil, fmt.Errorf("failed to parse roc: %w", err)
			}
		}
		if cvTable != "" && cvTable != "null" {
			if err := json.Unmarshal([]byte(cvTable), &m.CVTable); err != nil {
				return nil, fmt.Errorf("failed to parse cv table: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *RunStore) failures(ctx context.Context, runID string) ([]models.ModelFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT family, error FROM run_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load failures: %w", err)
	}
	defer rows.Close()

	var out []models.ModelFailure
	for rows.Next() {
		var f models.ModelFailure
		if err := rows.Scan(&f.Family, &f.Error); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RunSummary is one row of the run listing
type RunSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	DataPath  string    `json:"data_path"`
	TrainRows int       `json:"train_rows"`
	TestRows  int       `json:"test_rows"`
	BestAUC   float64   `json:"best_auc"`
	Models    int       `json:"models"`
	Failures  int       `json:"failures"`
}

// ListRuns returns the most recent runs, newest first
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.created_at, r.data_path, r.train_rows, r.test_rows,
			COALESCE((SELECT MAX(test_auc) FROM model_reports WHERE run_id = r.id), 0),
			(SELECT COUNT(*) FROM model_reports WHERE run_id = r.id),
			(SELECT COUNT(*) FROM run_failures WHERE run_id = r.id)
		FROM runs r ORDER BY r.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.DataPath, &r.TrainRows,
			&r.TestRows, &r.BestAUC, &r.Models, &r.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan run summary: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the database handle
func (s *RunStore) Close() error {
	return s.db.Close()
}

func nullableText(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
