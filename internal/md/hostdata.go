package md

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HostData describes the frozen host framework as an effective corrugation
// potential felt by the mobile ions. It is the artifact a campaign requires
// before any run can be launched.
type HostData struct {
	// Amplitude is the corrugation well depth in eV.
	Amplitude float64 `yaml:"amplitude"`
	// Period is the corrugation wavelength in angstrom.
	Period float64 `yaml:"period"`
	// Masses maps mobile species to their mass in amu.
	Masses map[string]float64 `yaml:"masses"`
}

func (h HostData) Validate() error {
	if h.Amplitude < 0 {
		return fmt.Errorf("host data: amplitude must not be negative, got %g", h.Amplitude)
	}
	if h.Period <= 0 {
		return fmt.Errorf("host data: period must be positive, got %g", h.Period)
	}
	if len(h.Masses) == 0 {
		return fmt.Errorf("host data: no mobile species masses")
	}
	for sp, m := range h.Masses {
		if m <= 0 {
			return fmt.Errorf("host data: mass of %s must be positive, got %g", sp, m)
		}
	}
	return nil
}

func DefaultHostData() HostData {
	return HostData{
		Amplitude: 0.15,
		Period:    3.0,
		Masses: map[string]float64{
			"Li": 6.94,
			"Na": 22.99,
		},
	}
}

func LoadHostData(path string) (HostData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return HostData{}, err
	}
	var h HostData
	if err := yaml.Unmarshal(data, &h); err != nil {
		return HostData{}, fmt.Errorf("host data: %w", err)
	}
	if err := h.Validate(); err != nil {
		return HostData{}, err
	}
	return h, nil
}

func SaveHostData(path string, h HostData) error {
	data, err := yaml.Marshal(h)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
