package meeting

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// manifest is the on-disk YAML shape for replaying a finished meeting
// through the final pass outside the host process.
type manifest struct {
	ID        string    `yaml:"id"`
	Recording string    `yaml:"recording"`
	StartedAt time.Time `yaml:"started_at"`
	EndedAt   time.Time `yaml:"ended_at"`
	Snippets  []struct {
		User      string    `yaml:"user"`
		Timestamp time.Time `yaml:"timestamp"`
		Text      string    `yaml:"text"`
	} `yaml:"snippets"`
}

// LoadManifest reads a meeting manifest from path. The manifest carries
// each snippet's accepted transcript as a single text field, which maps to
// SlowText.
func LoadManifest(path string) (*Meeting, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("meeting: read manifest %q: %w", path, err)
	}

	var man manifest
	if err := yaml.Unmarshal(raw, &man); err != nil {
		return nil, fmt.Errorf("meeting: parse manifest %q: %w", path, err)
	}
	if man.Recording == "" {
		return nil, errors.New("meeting: manifest has no recording path")
	}
	if man.StartedAt.IsZero() {
		return nil, errors.New("meeting: manifest has no started_at")
	}

	m := &Meeting{
		ID:            man.ID,
		RecordingPath: man.Recording,
		StartedAt:     man.StartedAt,
		EndedAt:       man.EndedAt,
	}
	for _, s := range man.Snippets {
		m.Snippets = append(m.Snippets, &Snippet{
			UserID:    s.User,
			Timestamp: s.Timestamp,
			SlowText:  s.Text,
		})
	}
	return m, nil
}
