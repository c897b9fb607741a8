// Package state persists the small amount of device state that must survive
// a power cycle: the spoken language, the last announcement time and the
// battery calibration.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"speakclock/internal/battery"
	appLog "speakclock/internal/log"
	"speakclock/internal/model"
)

// FileName is the state file inside the state directory.
const FileName = "state.yaml"

// file is the on-disk layout.
//
// battery_calibration is a flow list of three coefficients [a, b, c]. Older
// files carry the linear form [b, c], which is read as a = 0.
type file struct {
	Language     model.Language `yaml:"language"`
	LastAnnounce *int64         `yaml:"last_announce_epoch,omitempty"`
	Calibration  []float64      `yaml:"battery_calibration,flow,omitempty"`
}

// Store is a YAML-backed state file. All methods are safe for concurrent use.
type Store struct {
	path string

	mu   sync.Mutex
	data file
}

// Open loads dir/state.yaml, creating it with defaultLang when missing.
func Open(dir string, defaultLang model.Language) (*Store, error) {
	if dir == "" {
		return nil, errors.New("state dir is empty")
	}
	s := &Store{
		path: filepath.Join(dir, FileName),
		data: file{Language: defaultLang},
	}

	loaded, err := s.load()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err := s.save(); err != nil {
			return s, err
		}
		return s, nil
	}
	s.data = loaded
	return s, nil
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

func (s *Store) load() (file, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return file{}, err
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return file{}, fmt.Errorf("state: parse %s: %w", s.path, err)
	}
	return f, nil
}

// Language returns the persisted language. The file is re-read so edits
// made by another process (or by hand) take effect on the next announcement.
func (s *Store) Language() model.Language {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, err := s.load(); err == nil {
		s.data.Language = f.Language
	} else if !errors.Is(err, fs.ErrNotExist) {
		appLog.Error("state: reload failed, keeping cached language", err, "path", s.path)
	}
	return s.data.Language
}

// SetLanguage persists lang.
func (s *Store) SetLanguage(lang model.Language) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Language = lang
	return s.save()
}

// LastAnnounce returns the UTC epoch of the previous trigger.
func (s *Store) LastAnnounce() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.LastAnnounce == nil {
		return 0, false
	}
	return *s.data.LastAnnounce, true
}

// SaveLastAnnounce persists epoch as the previous trigger time.
func (s *Store) SaveLastAnnounce(epoch int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.LastAnnounce = &epoch
	return s.save()
}

// Calibration implements battery.CalibrationSource.
func (s *Store) Calibration() (battery.Calibration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch c := s.data.Calibration; len(c) {
	case 3:
		return battery.Calibration{A: c[0], B: c[1], C: c[2]}, true
	case 2:
		return battery.Calibration{A: 0, B: c[0], C: c[1]}, true
	default:
		return battery.DefaultCalibration(), false
	}
}

// SaveCalibration persists cal. The in-memory value is updated even when
// the write fails so the running process uses the new curve.
func (s *Store) SaveCalibration(cal battery.Calibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Calibration = []float64{cal.A, cal.B, cal.C}
	return s.save()
}

// save writes atomically via a temp file + rename with 0600 permissions.
// Callers hold s.mu.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(&s.data)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".speakclock-state-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
