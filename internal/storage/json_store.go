package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// JSONFile reads and writes a single JSON document, used for admin exports.
type JSONFile struct {
	mu   sync.Mutex
	path string
}

// NewJSONFile prepares a JSON file at path, creating its directory.
func NewJSONFile(path string) (*JSONFile, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return &JSONFile{path: path}, nil
}

func (f *JSONFile) Path() string {
	return f.path
}

// Read decodes the file into v. A missing file leaves v untouched.
func (f *JSONFile) Read(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(v)
}

// Write replaces the file contents with v. The data goes to a temp file that
// is renamed over the target so readers never see a partial export.
func (f *JSONFile) Write(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp := f.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, f.path)
}
