// Package favorites keeps the list of favorite teams shown next to match
// results. Favorites are identified by team id; adding an id that is already
// present is a no-op.
package favorites

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/football-gateway/pkg/metrics"
)

// ErrInvalidFavorite is returned for favorites without an id or name.
var ErrInvalidFavorite = errors.New("invalid favorite")

// Favorite is one stored team.
type Favorite struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Store reads and appends favorites.
type Store interface {
	List(ctx context.Context) ([]Favorite, error)
	// Add stores f unless its id is already present and reports whether it
	// was added.
	Add(ctx context.Context, f Favorite) (bool, error)
}

// FileStore persists favorites as a JSON array in a single file. A missing
// file reads as an empty list. Writes replace the file atomically.
type FileStore struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// List returns the stored favorites in insertion order.
func (s *FileStore) List(_ context.Context) ([]Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Add implements Store.
func (s *FileStore) Add(_ context.Context, f Favorite) (bool, error) {
	f.ID = strings.TrimSpace(f.ID)
	f.Name = strings.TrimSpace(f.Name)
	if f.ID == "" || f.Name == "" {
		return false, fmt.Errorf("%w: id and name are required", ErrInvalidFavorite)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	favorites, err := s.load()
	if err != nil {
		return false, err
	}
	for _, existing := range favorites {
		if existing.ID == f.ID {
			s.logger.Debug().Str("team_id", f.ID).Msg("Favorite already stored")
			return false, nil
		}
	}

	favorites = append(favorites, f)
	if err := s.save(favorites); err != nil {
		return false, err
	}

	metrics.FavoritesTotal.Set(float64(len(favorites)))
	s.logger.Info().Str("team_id", f.ID).Str("team_name", f.Name).Msg("Added favorite")
	return true, nil
}

func (s *FileStore) load() ([]Favorite, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Favorite{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read favorites: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []Favorite{}, nil
	}

	var favorites []Favorite
	if err := sonic.Unmarshal(data, &favorites); err != nil {
		return nil, fmt.Errorf("decode favorites %s: %w", s.path, err)
	}
	if favorites == nil {
		favorites = []Favorite{}
	}
	return favorites, nil
}

func (s *FileStore) save(favorites []Favorite) error {
	data, err := sonic.Marshal(favorites)
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp favorites file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write favorites: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync favorites: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close favorites: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace favorites: %w", err)
	}
	return nil
}
