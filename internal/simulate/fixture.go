package simulate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/podium/internal/domain/model"
)

// Fixture describes the event a run seeds.
//
//	name: Spring Gala
//	criteria:
//	  - {name: Vocal Quality, weight: 40, enabled: true}
//	contestants: [Ada, Bo]
type Fixture struct {
	Name        string            `yaml:"name"`
	Criteria    []model.Criterion `yaml:"criteria"`
	Contestants []string          `yaml:"contestants"`
}

// DefaultFixture returns the four criterion talent show used when no fixture
// file is given.
func DefaultFixture() Fixture {
	return Fixture{
		Name: "Simulated Gala",
		Criteria: []model.Criterion{
			{Name: "Vocal Quality", Weight: 40, Enabled: true},
			{Name: "Stage Presence", Weight: 30, Enabled: true},
			{Name: "Costume", Weight: 20, Enabled: true},
			{Name: "Crowd", Weight: 10, Enabled: true},
		},
	}
}

// LoadFixture reads a YAML fixture from path.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	if strings.TrimSpace(f.Name) == "" {
		return Fixture{}, fmt.Errorf("%w: name is required", ErrInvalidFixture)
	}
	if len(f.Criteria) == 0 {
		return Fixture{}, fmt.Errorf("%w: at least one criterion is required", ErrInvalidFixture)
	}
	return f, nil
}

// contestantNames returns the fixture names or n generated ones.
func (f Fixture) contestantNames(n int) []string {
	if len(f.Contestants) > 0 {
		return f.Contestants
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Contestant %02d", i+1)
	}
	return out
}
