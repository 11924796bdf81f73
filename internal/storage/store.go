package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/san-kum/iondiff/internal/campaign"
	"github.com/san-kum/iondiff/internal/traj"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type CampaignMetadata struct {
	ID         string                       `json:"id"`
	Timestamp  time.Time                    `json:"timestamp"`
	Outcome    string                       `json:"outcome"`
	Iterations int                          `json:"iterations"`
	Estimates  map[string]campaign.Estimate `json:"estimates"`
	Runs       []RunEntry                   `json:"runs"`
	History    []HistoryEntry               `json:"history"`
	Cleaned    []string                     `json:"cleaned,omitempty"`
	ParamsKey  string                       `json:"params_key,omitempty"`
	Error      string                       `json:"error,omitempty"`
}

type RunEntry struct {
	Label  string `json:"label"`
	Status string `json:"status"`
	Frames int    `json:"frames"`
}

type HistoryEntry struct {
	Iteration int     `json:"iteration"`
	Label     string  `json:"label"`
	Mean      float64 `json:"mean"`
	SEM       float64 `json:"sem"`
	Converged bool    `json:"converged"`
}

func (s *Store) Save(id string, result *campaign.Result, paramsKey string) (string, error) {
	if id == "" {
		id = fmt.Sprintf("campaign_%d", time.Now().Unix())
	}
	dir := filepath.Join(s.baseDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	meta := CampaignMetadata{
		ID:         id,
		Timestamp:  time.Now(),
		Outcome:    result.Outcome.Code(),
		Iterations: result.Iterations,
		Estimates:  result.Estimates,
		Cleaned:    result.Cleaned,
		ParamsKey:  paramsKey,
	}
	if result.Err != nil {
		meta.Error = result.Err.Error()
	}
	for _, r := range result.Runs {
		frames := 0
		if r.Segment != nil {
			frames = r.Segment.Len()
		}
		meta.Runs = append(meta.Runs, RunEntry{Label: r.Label, Status: r.Status.String(), Frames: frames})
	}
	for _, h := range result.History {
		meta.History = append(meta.History, HistoryEntry{
			Iteration: h.Iteration,
			Label:     h.Label,
			Mean:      h.Estimate.Mean,
			SEM:       h.Estimate.SEM,
			Converged: h.Converged,
		})
	}

	metaFile, err := os.Create(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	if result.Trajectory != nil && result.Trajectory.Len() > 0 {
		if err := s.writeTrajectory(dir, result.Trajectory); err != nil {
			return "", err
		}
	}
	return id, nil
}

func (s *Store) writeTrajectory(dir string, tr *traj.Trajectory) error {
	f, err := os.Create(filepath.Join(dir, "trajectory.csv"))
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"frame", "step", "atom", "x", "y", "z", "vx", "vy", "vz"}
	if err := w.Write(header); err != nil {
		return err
	}

	for fi, frame := range tr.Frames {
		for ai := range frame.Positions {
			row := []string{
				strconv.Itoa(fi),
				strconv.Itoa(frame.Step),
				strconv.Itoa(ai),
			}
			for d := 0; d < 3; d++ {
				row = append(row, strconv.FormatFloat(frame.Positions[ai][d], 'g', -1, 64))
			}
			for d := 0; d < 3; d++ {
				v := 0.0
				if ai < len(frame.Velocities) {
					v = frame.Velocities[ai][d]
				}
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

func (s *Store) List() ([]CampaignMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []CampaignMetadata{}, nil
		}
		return nil, err
	}

	campaigns := make([]CampaignMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta CampaignMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		campaigns = append(campaigns, meta)
	}
	return campaigns, nil
}

func (s *Store) Load(id string) (*CampaignMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, id, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta CampaignMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadTrajectory(id string) (*traj.Trajectory, error) {
	f, err := os.Open(filepath.Join(s.baseDir, id, "trajectory.csv"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return &traj.Trajectory{}, nil
	}

	tr := &traj.Trajectory{}
	lastFrame := -1
	for _, rec := range records[1:] {
		if len(rec) != 9 {
			continue
		}
		fi, err := strconv.Atoi(rec[0])
		if err != nil {
			continue
		}
		step, err := strconv.Atoi(rec[1])
		if err != nil {
			continue
		}

		var vals [6]float64
		ok := true
		for i := 0; i < 6; i++ {
			v, err := strconv.ParseFloat(rec[3+i], 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}

		if fi != lastFrame {
			tr.Frames = append(tr.Frames, traj.Frame{Step: step})
			lastFrame = fi
		}
		frame := &tr.Frames[len(tr.Frames)-1]
		frame.Positions = append(frame.Positions, traj.Vec3{vals[0], vals[1], vals[2]})
		frame.Velocities = append(frame.Velocities, traj.Vec3{vals[3], vals[4], vals[5]})
	}
	return tr, nil
}
