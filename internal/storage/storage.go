package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Storage wraps the filesystem used for every persisted artifact of a run.
type Storage struct {
	Fs afero.Fs
}

func New(fs afero.Fs) *Storage {
	return &Storage{Fs: fs}
}

func NewOs() *Storage {
	return New(afero.NewOsFs())
}

func (s *Storage) ensureDir(file string) error {
	dir := path.Dir(file)
	if dir == "." || dir == "" {
		return nil
	}
	return s.Fs.MkdirAll(dir, 0o755)
}

func (s *Storage) Exists(name string) bool {
	ok, err := afero.Exists(s.Fs, name)
	return err == nil && ok
}

// WriteCSV truncates name and writes header (if non nil) followed by rows.
func (s *Storage) WriteCSV(name string, header []string, rows [][]string) error {
	if err := s.ensureDir(name); err != nil {
		return err
	}
	f, err := s.Fs.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if header != nil {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// AppendCSV appends rows without any header.
func (s *Storage) AppendCSV(name string, rows [][]string) error {
	if err := s.ensureDir(name); err != nil {
		return err
	}
	f, err := s.Fs.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("append %s: %w", name, err)
	}
	return nil
}

// ReadCSV returns every record of name. When skipHeader is set the first
// record is dropped.
func (s *Storage) ReadCSV(name string, skipHeader bool) ([][]string, error) {
	f, err := s.Fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if skipHeader && len(rows) > 0 {
		rows = rows[1:]
	}
	return rows, nil
}

func (s *Storage) SaveJSON(name string, v any) error {
	if err := s.ensureDir(name); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return afero.WriteFile(s.Fs, name, b, 0o644)
}

func (s *Storage) ReadJSON(name string, v any) error {
	b, err := afero.ReadFile(s.Fs, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Storage) SavePage(name, content string) error {
	if err := s.ensureDir(name); err != nil {
		return err
	}
	return afero.WriteFile(s.Fs, name, []byte(content), 0o644)
}

func (s *Storage) ReadFile(name string) (string, error) {
	b, err := afero.ReadFile(s.Fs, name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Storage) WriteFile(name string, b []byte) error {
	if err := s.ensureDir(name); err != nil {
		return err
	}
	return afero.WriteFile(s.Fs, name, b, 0o644)
}

// ListFiles returns the regular files of dir sorted by name. A limit > 0 caps
// the result.
func (s *Storage) ListFiles(dir string, limit int) ([]string, error) {
	infos, err := afero.ReadDir(s.Fs, dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		files = append(files, path.Join(dir, info.Name()))
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	sort.Strings(files)
	return files, nil
}

// FindCaseInsensitive returns the existing path in the directory of name whose
// base matches name ignoring case.
func (s *Storage) FindCaseInsensitive(name string) (string, bool) {
	dir, base := path.Split(name)
	if dir == "" {
		dir = "."
	}
	infos, err := afero.ReadDir(s.Fs, dir)
	if err != nil {
		return "", false
	}
	for _, info := range infos {
		if strings.EqualFold(info.Name(), base) {
			return path.Join(dir, info.Name()), true
		}
	}
	return "", false
}

// ClearDir removes the regular files directly under dir. A missing dir is
// created.
func (s *Storage) ClearDir(dir string) error {
	infos, err := afero.ReadDir(s.Fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return s.Fs.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		if err := s.Fs.Remove(path.Join(dir, info.Name())); err != nil {
			return err
		}
	}
	return nil
}

func BaseNameNoExt(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}
