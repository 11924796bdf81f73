// Package store serializes a complete campaign, metadata and trajectory
// together, into a single self-contained JSON document for downstream
// tooling.
package store

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/iondiff/internal/storage"
	"github.com/san-kum/iondiff/internal/traj"
)

type ExportFrame struct {
	Step       int          `json:"step"`
	Positions  [][3]float64 `json:"positions"`
	Velocities [][3]float64 `json:"velocities,omitempty"`
}

type ExportData struct {
	Campaign storage.CampaignMetadata `json:"campaign"`
	Frames   []ExportFrame            `json:"frames,omitempty"`
}

func build(meta *storage.CampaignMetadata, tr *traj.Trajectory) ExportData {
	data := ExportData{Campaign: *meta}
	if tr == nil {
		return data
	}
	for _, f := range tr.Frames {
		ef := ExportFrame{Step: f.Step}
		for _, p := range f.Positions {
			ef.Positions = append(ef.Positions, [3]float64(p))
		}
		for _, v := range f.Velocities {
			ef.Velocities = append(ef.Velocities, [3]float64(v))
		}
		data.Frames = append(data.Frames, ef)
	}
	return data
}

func ExportJSON(w io.Writer, meta *storage.CampaignMetadata, tr *traj.Trajectory) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(build(meta, tr))
}

func ExportJSONFile(path string, meta *storage.CampaignMetadata, tr *traj.Trajectory) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return ExportJSON(f, meta, tr)
}
