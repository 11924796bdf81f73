package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/iondiff/internal/campaign"
	"github.com/san-kum/iondiff/internal/traj"
)

const (
	DefaultTimestep      = 2.0
	DefaultSteps         = 2000
	DefaultTemperature   = 600.0
	DefaultFriction      = 0.05
	DefaultSampleEvery   = 10
	DefaultMinIterations = 2
	DefaultMaxIterations = 20
	DefaultSEMThreshold  = 1e-5
	DefaultSEMRelative   = 1e-2
)

type Config struct {
	Structure     StructureConfig `yaml:"structure"`
	Engine        EngineConfig    `yaml:"engine"`
	Criteria      CriteriaConfig  `yaml:"criteria"`
	Estimator     EstimatorConfig `yaml:"estimator"`
	DataDir       string          `yaml:"data_dir"`
	HostData      string          `yaml:"host_data"`
	CleanWorkdirs bool            `yaml:"clean_workdirs"`
}

// StructureConfig describes the simulated supercell: mobile ions first,
// then the static host framework. The ordering matters because restart
// reconstruction assumes mobile atoms occupy the leading indices.
type StructureConfig struct {
	MobileSpecies string  `yaml:"mobile_species"`
	MobileCount   int     `yaml:"mobile_count"`
	HostSpecies   string  `yaml:"host_species"`
	HostCount     int     `yaml:"host_count"`
	Cell          float64 `yaml:"cell"`
}

type EngineConfig struct {
	Steps       int     `yaml:"steps"`
	Timestep    float64 `yaml:"timestep"`
	Temperature float64 `yaml:"temperature"`
	Friction    float64 `yaml:"friction"`
	SampleEvery int     `yaml:"sample_every"`
	Seed        int64   `yaml:"seed"`
	MobileOnly  bool    `yaml:"mobile_only"`
}

type CriteriaConfig struct {
	MinIterations int     `yaml:"min_iterations"`
	MaxIterations int     `yaml:"max_iterations"`
	SEMThreshold  float64 `yaml:"sem_threshold"`
	SEMRelative   float64 `yaml:"sem_relative_threshold"`
}

type EstimatorConfig struct {
	EquilibrationFrames int `yaml:"equilibration_frames"`
	FitStart            int `yaml:"fit_start"`
	FitEnd              int `yaml:"fit_end"`
	Blocks              int `yaml:"blocks"`
}

func DefaultConfig() *Config {
	return &Config{
		Structure: StructureConfig{
			MobileSpecies: "Li",
			MobileCount:   16,
			HostSpecies:   "O",
			HostCount:     48,
			Cell:          12.0,
		},
		Engine: EngineConfig{
			Steps:       DefaultSteps,
			Timestep:    DefaultTimestep,
			Temperature: DefaultTemperature,
			Friction:    DefaultFriction,
			SampleEvery: DefaultSampleEvery,
			Seed:        1,
		},
		Criteria: CriteriaConfig{
			MinIterations: DefaultMinIterations,
			MaxIterations: DefaultMaxIterations,
			SEMThreshold:  DefaultSEMThreshold,
			SEMRelative:   DefaultSEMRelative,
		},
		Estimator: EstimatorConfig{
			EquilibrationFrames: 10,
			FitStart:            1,
			FitEnd:              40,
			Blocks:              1,
		},
		DataDir:  "iondiff-data",
		HostData: "iondiff-data/host.yaml",
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Structure.MobileSpecies == "" {
		return fmt.Errorf("config: mobile_species is required")
	}
	if c.Structure.MobileCount <= 0 {
		return fmt.Errorf("config: mobile_count must be positive, got %d", c.Structure.MobileCount)
	}
	if c.Structure.HostCount < 0 {
		return fmt.Errorf("config: host_count must not be negative, got %d", c.Structure.HostCount)
	}
	if c.Structure.Cell <= 0 {
		return fmt.Errorf("config: cell must be positive, got %g", c.Structure.Cell)
	}
	if c.Engine.Steps <= 0 {
		return fmt.Errorf("config: engine steps must be positive, got %d", c.Engine.Steps)
	}
	if c.Engine.Timestep <= 0 {
		return fmt.Errorf("config: engine timestep must be positive, got %g", c.Engine.Timestep)
	}
	if c.Engine.Temperature <= 0 {
		return fmt.Errorf("config: engine temperature must be positive, got %g", c.Engine.Temperature)
	}
	if c.Engine.SampleEvery <= 0 {
		return fmt.Errorf("config: sample_every must be positive, got %d", c.Engine.SampleEvery)
	}
	if c.Estimator.FitEnd <= c.Estimator.FitStart {
		return fmt.Errorf("config: fit window [%d, %d) is empty", c.Estimator.FitStart, c.Estimator.FitEnd)
	}
	if c.Estimator.Blocks < 1 {
		return fmt.Errorf("config: blocks must be at least 1, got %d", c.Estimator.Blocks)
	}
	return c.CampaignCriteria().Validate()
}

func (c *Config) CampaignCriteria() campaign.Criteria {
	return campaign.Criteria{
		MinIterations:        c.Criteria.MinIterations,
		MaxIterations:        c.Criteria.MaxIterations,
		SEMThreshold:         c.Criteria.SEMThreshold,
		SEMRelativeThreshold: c.Criteria.SEMRelative,
	}
}

func (c *Config) EstimatorParams() campaign.EstimatorParams {
	return campaign.EstimatorParams{
		EquilibrationFrames: c.Estimator.EquilibrationFrames,
		SpeciesOfInterest:   c.Structure.MobileSpecies,
		FitStart:            c.Estimator.FitStart,
		FitEnd:              c.Estimator.FitEnd,
		Blocks:              c.Estimator.Blocks,
	}
}

func (c *Config) RunSettings() campaign.RunSettings {
	return campaign.RunSettings{
		Steps:       c.Engine.Steps,
		Timestep:    c.Engine.Timestep,
		Temperature: c.Engine.Temperature,
		Seed:        c.Engine.Seed,
	}
}

// BuildStructure lays the configured atoms out on a cubic grid inside the
// cell, mobile species first. Grid placement only seeds the campaign; the
// first run thermalizes it.
func (c *Config) BuildStructure() traj.Structure {
	total := c.Structure.MobileCount + c.Structure.HostCount
	edge := c.Structure.Cell
	s := traj.Structure{
		Species:   make([]string, 0, total),
		Positions: make([]traj.Vec3, 0, total),
		Cell: [3]traj.Vec3{
			{edge, 0, 0},
			{0, edge, 0},
			{0, 0, edge},
		},
	}

	side := 1
	for side*side*side < total {
		side++
	}
	spacing := c.Structure.Cell / float64(side)

	idx := 0
	place := func(species string, count int) {
		for i := 0; i < count; i++ {
			x := idx % side
			y := (idx / side) % side
			z := idx / (side * side)
			s.Species = append(s.Species, species)
			s.Positions = append(s.Positions, traj.Vec3{
				(float64(x) + 0.5) * spacing,
				(float64(y) + 0.5) * spacing,
				(float64(z) + 0.5) * spacing,
			})
			idx++
		}
	}
	place(c.Structure.MobileSpecies, c.Structure.MobileCount)
	place(c.Structure.HostSpecies, c.Structure.HostCount)
	return s
}
