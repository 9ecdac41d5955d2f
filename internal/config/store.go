package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fgeck/gameserver-console/internal/models"
	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const eventsKey = "events"

// Store writes the events list back into the configuration file. Every other
// key of the file is preserved. Writes go to a temporary file in the same
// directory which then replaces the original.
type Store struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the configuration file at path.
func NewStore(path string) *Store {
	return NewStoreWithFs(afero.NewOsFs(), path)
}

// NewStoreWithFs creates a store on a custom filesystem (for testing).
func NewStoreWithFs(fs afero.Fs, path string) *Store {
	return &Store{fs: fs, path: path}
}

// SaveEvents replaces the events of the configuration file.
func (s *Store) SaveEvents(events []models.ScheduledEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := afero.ReadFile(s.fs, s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config file: %w", err)
	}

	records := make([]eventRecord, 0, len(events))
	for _, e := range events {
		records = append(records, newEventRecord(e))
	}

	var out []byte
	if strings.EqualFold(filepath.Ext(s.path), ".json") {
		out, err = replaceJSON(current, records)
	} else {
		out, err = replaceYAML(current, records)
	}
	if err != nil {
		return err
	}

	return s.writeAtomic(out)
}

func replaceYAML(current []byte, records []eventRecord) ([]byte, error) {
	var doc yaml.Node
	if len(bytes.TrimSpace(current)) > 0 {
		if err := yaml.Unmarshal(current, &doc); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config file root is not a mapping")
	}

	var value yaml.Node
	if err := value.Encode(records); err != nil {
		return nil, fmt.Errorf("encoding events: %w", err)
	}

	replaced := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == eventsKey {
			root.Content[i+1] = &value
			replaced = true
			break
		}
	}
	if !replaced {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: eventsKey},
			&value,
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, fmt.Errorf("encoding config file: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding config file: %w", err)
	}
	return buf.Bytes(), nil
}

func replaceJSON(current []byte, records []eventRecord) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(current)) > 0 {
		if err := json.Unmarshal(current, &doc); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	value, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding events: %w", err)
	}
	doc[eventsKey] = value

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding config file: %w", err)
	}
	return append(out, '\n'), nil
}

func (s *Store) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	perm := os.FileMode(0o600)
	if info, err := s.fs.Stat(s.path); err == nil {
		perm = info.Mode().Perm()
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temporary config file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = s.fs.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temporary config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temporary config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temporary config file: %w", err)
	}
	if err := s.fs.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("setting config file mode: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}
