package cal

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"
)

// Kind identifies a persisted artifact.
type Kind int

// Artifact kinds.
const (
	LastPort Kind = iota
	ADCCalibration
	DACCalibration
	Voltages
)

var kindFiles = map[Kind]string{
	LastPort:       "last_port.pb",
	ADCCalibration: "cal_adc.pb",
	DACCalibration: "cal_dac.pb",
	Voltages:       "cal_vdd.pb",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, ok := kindFiles[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Store persists opaque artifacts.
type Store interface {
	Load(kind Kind) ([]byte, error)
	Save(kind Kind, data []byte) error
}

// FileStore keeps artifacts as files in a directory.
// Calibration artifacts are additionally named with CalPrefix so several
// boards can share a directory.
type FileStore struct {
	Dir       string
	Prefix    string
	CalPrefix string
}

// Path returns the file of an artifact.
func (s *FileStore) Path(kind Kind) string {
	name := s.Prefix
	if kind != LastPort {
		name += s.CalPrefix
	}
	return filepath.Join(s.Dir, name+kind.String())
}

// Load implements Store.
func (s *FileStore) Load(kind Kind) ([]byte, error) {
	data, err := ioutil.ReadFile(s.Path(kind))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", kind, ErrNotFound)
	}
	return data, err
}

// Save implements Store.
func (s *FileStore) Save(kind Kind, data []byte) error {
	if s.Dir != "" {
		if err := os.MkdirAll(s.Dir, 0755); err != nil {
			return err
		}
	}
	return ioutil.WriteFile(s.Path(kind), data, 0644)
}

// MemStore keeps artifacts in memory.
type MemStore struct {
	lock  sync.Mutex
	items map[Kind][]byte
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{items: make(map[Kind][]byte)}
}

// Load implements Store.
func (s *MemStore) Load(kind Kind) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	data, ok := s.items[kind]
	if !ok {
		return nil, fmt.Errorf("%s: %w", kind, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Save implements Store.
func (s *MemStore) Save(kind Kind, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.items[kind] = append([]byte(nil), data...)
	return nil
}
