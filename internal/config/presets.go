package config

// Presets are named campaign protocols per material family. A protocol
// trades wall time against the tightness of the convergence target.
var Presets = map[string]map[string]*Config{
	"lithium-oxide": {
		"fast": preset(StructureConfig{
			MobileSpecies: "Li", MobileCount: 16, HostSpecies: "O", HostCount: 48, Cell: 12.0,
		}, EngineConfig{
			Steps: 1000, Timestep: 2.0, Temperature: 800.0, Friction: 0.05, SampleEvery: 10, Seed: 1,
		}, CriteriaConfig{
			MinIterations: 2, MaxIterations: 8, SEMThreshold: 1e-4, SEMRelative: 5e-2,
		}),
		"moderate": preset(StructureConfig{
			MobileSpecies: "Li", MobileCount: 16, HostSpecies: "O", HostCount: 48, Cell: 12.0,
		}, EngineConfig{
			Steps: 2000, Timestep: 2.0, Temperature: 600.0, Friction: 0.05, SampleEvery: 10, Seed: 1,
		}, CriteriaConfig{
			MinIterations: 2, MaxIterations: 20, SEMThreshold: 1e-5, SEMRelative: 1e-2,
		}),
		"precise": preset(StructureConfig{
			MobileSpecies: "Li", MobileCount: 32, HostSpecies: "O", HostCount: 96, Cell: 15.0,
		}, EngineConfig{
			Steps: 4000, Timestep: 1.0, Temperature: 600.0, Friction: 0.05, SampleEvery: 10, Seed: 1,
		}, CriteriaConfig{
			MinIterations: 4, MaxIterations: 40, SEMThreshold: 1e-6, SEMRelative: 5e-3,
		}),
	},
	"sodium-sulfide": {
		"fast": preset(StructureConfig{
			MobileSpecies: "Na", MobileCount: 12, HostSpecies: "S", HostCount: 36, Cell: 13.0,
		}, EngineConfig{
			Steps: 1000, Timestep: 2.0, Temperature: 900.0, Friction: 0.05, SampleEvery: 10, Seed: 1,
		}, CriteriaConfig{
			MinIterations: 2, MaxIterations: 8, SEMThreshold: 1e-4, SEMRelative: 5e-2,
		}),
		"moderate": preset(StructureConfig{
			MobileSpecies: "Na", MobileCount: 12, HostSpecies: "S", HostCount: 36, Cell: 13.0,
		}, EngineConfig{
			Steps: 2000, Timestep: 2.0, Temperature: 700.0, Friction: 0.05, SampleEvery: 10, Seed: 1,
		}, CriteriaConfig{
			MinIterations: 2, MaxIterations: 20, SEMThreshold: 1e-5, SEMRelative: 1e-2,
		}),
	},
}

func preset(s StructureConfig, e EngineConfig, c CriteriaConfig) *Config {
	cfg := DefaultConfig()
	cfg.Structure = s
	cfg.Engine = e
	cfg.Criteria = c
	return cfg
}

func GetPreset(material, protocol string) *Config {
	protocols, ok := Presets[material]
	if !ok {
		return nil
	}
	cfg, ok := protocols[protocol]
	if !ok {
		return nil
	}
	// Callers mutate the result via flag overrides; the shared table must
	// stay pristine.
	c := *cfg
	return &c
}

func ListPresets(material string) []string {
	protocols, ok := Presets[material]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(protocols))
	for name := range protocols {
		names = append(names, name)
	}
	return names
}
