package stats

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"sticksolo/internal/ceo"
	"sticksolo/internal/model"
	"sticksolo/internal/storage"
)

const (
	runIndexFile      = "run_index.json"
	experimentFile    = "experiment.json"
	rewardHistoryFile = "reward_history.csv"
	rewardCurveFile   = "reward_curve.png"
	goalMapFile       = "goal_map.png"
)

var rewardHistoryHeader = []string{"generation", "mean_reward", "best_reward", "min_reward", "elite_mean_reward", "std_mean"}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Generations  int     `json:"generations"`
	BatchSize    int     `json:"batch_size"`
	Episodes     int     `json:"episodes"`
	Seed         int64   `json:"seed"`
	Workers      int     `json:"workers"`
	ParamCount   int     `json:"param_count"`
	MeanReward   float64 `json:"mean_reward"`
	BestReward   float64 `json:"best_reward"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// IndexEntry summarises an experiment for the run index.
func IndexEntry(e model.Experiment) RunIndexEntry {
	s := e.Summary()
	entry := RunIndexEntry{
		RunID:        e.ID,
		Generations:  s.Generations,
		BatchSize:    e.Optimizer.BatchSize,
		Episodes:     e.Optimizer.NumEpisodes,
		Seed:         e.Seed,
		Workers:      e.Optimizer.Workers,
		MeanReward:   e.MeanReward,
		BestReward:   s.BestReward,
		CreatedAtUTC: e.CreatedAtUTC.UTC().Format(time.RFC3339Nano),
	}
	if e.Network != nil {
		entry.ParamCount = e.Network.ParamCount()
	}
	return entry
}

// WriteRunArtifacts lays out one run directory under baseDir: the full
// experiment record, its reward history as CSV and a reward curve plot.
func WriteRunArtifacts(baseDir string, experiment model.Experiment) (string, error) {
	if experiment.ID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, experiment.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	payload, err := storage.EncodeExperiment(experiment)
	if err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, experimentFile), json.RawMessage(payload)); err != nil {
		return "", err
	}
	if err := WriteRewardHistory(runDir, experiment.History); err != nil {
		return "", err
	}
	if len(experiment.History) > 0 {
		if err := SaveRewardCurve(filepath.Join(runDir, rewardCurveFile), experiment.History); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

// ReadRunExperiment loads the experiment record of a run directory.
func ReadRunExperiment(baseDir, runID string) (model.Experiment, bool, error) {
	if runID == "" {
		return model.Experiment{}, false, fmt.Errorf("run id is required")
	}
	data, err := os.ReadFile(filepath.Join(baseDir, runID, experimentFile))
	if err != nil {
		if os.IsNotExist(err) {
			return model.Experiment{}, false, nil
		}
		return model.Experiment{}, false, err
	}
	experiment, err := storage.DecodeExperiment(data)
	if err != nil {
		return model.Experiment{}, false, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return experiment, true, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory to outDir. Plots are optional.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{experimentFile, rewardHistoryFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{rewardCurveFile, goalMapFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return dst, nil
}

// GoalMapPath is where a run's goal map plot lives.
func GoalMapPath(baseDir, runID string) string {
	return filepath.Join(baseDir, runID, goalMapFile)
}

func WriteRewardHistory(runDir string, history []ceo.GenerationDiagnostics) error {
	path := filepath.Join(runDir, rewardHistoryFile)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(rewardHistoryHeader); err != nil {
		return err
	}
	for _, d := range history {
		if err := writer.Write([]string{
			strconv.Itoa(d.Generation),
			formatFloat(d.MeanReward),
			formatFloat(d.BestReward),
			formatFloat(d.MinReward),
			formatFloat(d.EliteMeanReward),
			formatFloat(d.StdMean),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadRewardHistory(baseDir, runID string) ([]ceo.GenerationDiagnostics, bool, error) {
	path := filepath.Join(baseDir, runID, rewardHistoryFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(rewardHistoryHeader)
	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []ceo.GenerationDiagnostics{}, true, nil
		}
		return nil, false, err
	}

	history := make([]ceo.GenerationDiagnostics, 0, 128)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, err
		}
		generation, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, fmt.Errorf("reward history generation: %w", err)
		}
		values := make([]float64, len(record)-1)
		for i, field := range record[1:] {
			if values[i], err = strconv.ParseFloat(field, 64); err != nil {
				return nil, false, fmt.Errorf("reward history %s: %w", rewardHistoryHeader[i+1], err)
			}
		}
		history = append(history, ceo.GenerationDiagnostics{
			Generation:      generation,
			MeanReward:      values[0],
			BestReward:      values[1],
			MinReward:       values[2],
			EliteMeanReward: values[3],
			StdMean:         values[4],
		})
	}
	return history, true, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
