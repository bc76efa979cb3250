package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const fileVersion = 1

// Store is the settings interface handed to every component.
type Store interface {
	Int(key string) int
	String(key string) string
	Bool(key string) bool
	Strings(key string) []string

	SetInt(key string, v int) error
	SetString(key string, v string) error
	SetBool(key string, v bool) error
	SetStrings(key string, v []string) error

	// Subscribe calls fn whenever key changes. The returned function
	// removes the subscription and is safe to call more than once.
	Subscribe(key string, fn func(key string)) (unsubscribe func())
}

// document is the on-disk layout.
type document struct {
	Version  int                    `yaml:"version"`
	Settings map[string]interface{} `yaml:"settings"`
}

// FileStore is a Store backed by a YAML file. A FileStore with an empty
// path keeps values in memory only.
type FileStore struct {
	path   string
	logger *zap.Logger

	// fileMutex serialises writes of the settings file.
	fileMutex sync.Mutex

	mu       sync.RWMutex
	values   map[string]interface{}
	defaults map[string]interface{}

	subMu  sync.Mutex
	subs   map[string]map[int]func(string)
	nextID int
}

// Open loads the settings file at path. A missing file is not an error;
// defaults are used until the first Set writes it.
func Open(path string, logger *zap.Logger) (*FileStore, error) {
	s := newStore(path, logger)
	values, err := s.readFile()
	if err != nil {
		return nil, err
	}
	s.values = values
	return s, nil
}

// OpenDefault opens the settings file at GetConfigPath.
func OpenDefault(logger *zap.Logger) (*FileStore, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, fmt.Errorf("failed to get config path: %w", err)
	}
	return Open(path, logger)
}

// NewMemoryStore returns a store that is never persisted.
func NewMemoryStore() *FileStore {
	return newStore("", nil)
}

func newStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		path:     path,
		logger:   logger,
		values:   make(map[string]interface{}),
		defaults: Defaults(),
		subs:     make(map[string]map[int]func(string)),
	}
}

// Path returns the backing file path ("" for memory stores).
func (s *FileStore) Path() string {
	return s.path
}

// Value returns the raw effective value of key.
func (s *FileStore) Value(key string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(key)
}

func (s *FileStore) lookup(key string) interface{} {
	if v, ok := s.values[key]; ok {
		return v
	}
	return s.defaults[key]
}

// Int returns the integer value of key, or 0.
func (s *FileStore) Int(key string) int {
	return asInt(s.Value(key))
}

// String returns the string value of key, or "".
func (s *FileStore) String(key string) string {
	switch v := s.Value(key).(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Bool returns the boolean value of key, or false.
func (s *FileStore) Bool(key string) bool {
	switch v := s.Value(key).(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Strings returns the string list value of key.
func (s *FileStore) Strings(key string) []string {
	list, _ := normalize(s.Value(key)).([]string)
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// SetInt stores an integer value.
func (s *FileStore) SetInt(key string, v int) error {
	return s.set(key, v)
}

// SetString stores a string value.
func (s *FileStore) SetString(key string, v string) error {
	return s.set(key, v)
}

// SetBool stores a boolean value.
func (s *FileStore) SetBool(key string, v bool) error {
	return s.set(key, v)
}

// SetStrings stores a string list value.
func (s *FileStore) SetStrings(key string, v []string) error {
	list := make([]string, len(v))
	copy(list, v)
	return s.set(key, list)
}

// set holds fileMutex across snapshot and save so the file always ends up
// with the latest snapshot.
func (s *FileStore) set(key string, v interface{}) error {
	s.fileMutex.Lock()
	s.mu.Lock()
	if reflect.DeepEqual(normalize(s.lookup(key)), normalize(v)) {
		s.mu.Unlock()
		s.fileMutex.Unlock()
		return nil
	}
	s.values[key] = v
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	err := s.saveLocked(snapshot)
	s.fileMutex.Unlock()
	s.notify(key)
	return err
}

// Subscribe registers fn for changes of key.
func (s *FileStore) Subscribe(key string, fn func(key string)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	if s.subs[key] == nil {
		s.subs[key] = make(map[int]func(string))
	}
	s.subs[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs[key], id)
		})
	}
}

// Subscribers returns the number of live subscriptions for key.
func (s *FileStore) Subscribers(key string) int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs[key])
}

func (s *FileStore) notify(key string) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs[key]))
	for id := range s.subs[key] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[key][id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(key)
	}
}

// Reload re-reads the settings file and notifies subscribers of every key
// whose effective value changed.
func (s *FileStore) Reload() error {
	if s.path == "" {
		return nil
	}
	values, err := s.readFile()
	if err != nil {
		return err
	}

	s.mu.Lock()
	var changed []string
	keys := make(map[string]bool)
	for k := range values {
		keys[k] = true
	}
	for k := range s.values {
		keys[k] = true
	}
	old := s.values
	s.values = values
	for k := range keys {
		before := normalize(effective(old, s.defaults, k))
		after := normalize(effective(values, s.defaults, k))
		if !reflect.DeepEqual(before, after) {
			changed = append(changed, k)
		}
	}
	s.mu.Unlock()

	sort.Strings(changed)
	for _, k := range changed {
		s.logger.Debug("Setting changed externally", zap.String("key", k))
		s.notify(k)
	}
	return nil
}

func effective(values, defaults map[string]interface{}, key string) interface{} {
	if v, ok := values[key]; ok {
		return v
	}
	return defaults[key]
}

func (s *FileStore) snapshotLocked() map[string]interface{} {
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *FileStore) readFile() (map[string]interface{}, error) {
	values := make(map[string]interface{})
	if s.path == "" {
		return values, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if doc.Version != 0 && doc.Version != fileVersion {
		return nil, fmt.Errorf("unsupported settings version: %d (expected %d)", doc.Version, fileVersion)
	}
	for k, v := range doc.Settings {
		values[k] = normalize(v)
	}
	return values, nil
}

// saveLocked performs an atomic write of the settings file. The caller
// holds fileMutex.
func (s *FileStore) saveLocked(values map[string]interface{}) error {
	if s.path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(&document{Version: fileVersion, Settings: values})
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	header := []byte(`# battctl settings
# Edited by battctl and by hand. Running daemons pick up changes automatically.
# The BIOS password is never stored here; see 'battctl password set'.

`)
	data = append(header, data...)

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary settings file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save settings file: %w", err)
	}

	return nil
}

// normalize converts YAML-decoded values to the canonical types used for
// comparison: int, bool, string and []string.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int64:
		return int(t)
	case uint64:
		return int(t)
	case float64:
		return int(t)
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case []string:
		if t == nil {
			return []string{}
		}
		return t
	default:
		return v
	}
}

func asInt(v interface{}) int {
	switch t := normalize(v).(type) {
	case int:
		return t
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}
