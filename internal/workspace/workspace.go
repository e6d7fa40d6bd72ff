package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ent0n29/parlons/internal/logging"
)

const (
	// KindReply tags synthesized assistant audio.
	KindReply = "llm"
	// KindRecording tags uploaded learner audio.
	KindRecording = "recording"

	userDirPrefix = "user_"

	// MaxUserIDBytes bounds accepted user ids.
	MaxUserIDBytes = 512
	maxDirNameLen  = 128
)

var (
	ErrOutsideRoot   = errors.New("path escapes the temp root")
	ErrInvalidUserID = errors.New("user id must be valid UTF-8 of at most 512 bytes")
)

// Manager owns per-user scratch directories under a single root.
type Manager struct {
	root      string
	urlPrefix string
	log       *logging.Logger
}

// New resolves root to an absolute path and creates it.
func New(root, urlPrefix string, log *logging.Logger) (*Manager, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("temp root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve temp root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create temp root: %w", err)
	}
	if log == nil {
		log = logging.Nop()
	}
	if urlPrefix == "" {
		urlPrefix = "/temp_audio"
	}
	return &Manager{
		root:      abs,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		log:       log,
	}, nil
}

func (m *Manager) Root() string { return m.root }

// ValidateUserID reports whether id can own a workspace. Any UTF-8 string
// within MaxUserIDBytes is accepted; ids are escaped before touching disk.
func ValidateUserID(id string) error {
	if len(id) > MaxUserIDBytes || !utf8.ValidString(id) {
		return ErrInvalidUserID
	}
	return nil
}

// dirName maps an opaque id onto a single safe path segment. Escaping is
// injective, and the hashed form starts with a sequence escaping never
// produces, so distinct ids never share a directory.
func dirName(id string) string {
	name := url.PathEscape(id)
	switch name {
	case ".":
		name = "%2E"
	case "..":
		name = "%2E%2E"
	}
	if len(name) > maxDirNameLen {
		sum := sha256.Sum256([]byte(id))
		name = "%sha256-" + hex.EncodeToString(sum[:16])
	}
	return userDirPrefix + name
}

func (m *Manager) userDir(userID string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	return filepath.Join(m.root, dirName(userID)), nil
}

// UserDir returns the directory for userID, creating it on demand, along with
// the id it belongs to. A blank id gets a freshly generated one.
func (m *Manager) UserDir(userID string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = uuid.NewString()
	}
	dir, err := m.userDir(userID)
	if err != nil {
		return "", "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create user dir: %w", err)
	}
	return dir, userID, nil
}

// UserPath joins name onto the user's directory.
func (m *Manager) UserPath(userID, name string) (string, error) {
	dir, _, err := m.UserDir(userID)
	if err != nil {
		return "", err
	}
	if name != filepath.Base(name) || name == "." || name == ".." {
		return "", ErrOutsideRoot
	}
	return filepath.Join(dir, name), nil
}

// FileName builds "<kind>_<unix seconds>.<ext>".
func FileName(kind, ext string, now time.Time) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return fmt.Sprintf("%s_%d", kind, now.Unix())
	}
	return fmt.Sprintf("%s_%d.%s", kind, now.Unix(), ext)
}

// NewFilePath returns an unused path in the user's directory named after
// kind and now. Same-second collisions get a numeric suffix.
func (m *Manager) NewFilePath(userID, kind, ext string, now time.Time) (string, error) {
	dir, _, err := m.UserDir(userID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(kind, ext, now))
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return path, nil
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	for i := 1; i < 1000; i++ {
		name := fmt.Sprintf("%s_%d_%d", kind, now.Unix(), i)
		if ext != "" {
			name += "." + ext
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free file name for %s in %s", kind, filepath.Base(dir))
}

// PublicURL maps a file under the root to its download URL. Each segment is
// escaped, so directory names holding '%' survive the round trip.
func (m *Manager) PublicURL(path string) (string, error) {
	rel, err := m.relative(path)
	if err != nil {
		return "", err
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return m.urlPrefix + "/" + strings.Join(segments, "/"), nil
}

// Resolve maps a decoded URL-relative path back to a file under the root.
func (m *Manager) Resolve(rel string) (string, error) {
	rel = strings.TrimPrefix(filepath.FromSlash(rel), string(filepath.Separator))
	full := filepath.Join(m.root, rel)
	if _, err := m.relative(full); err != nil {
		return "", err
	}
	return full, nil
}

func (m *Manager) relative(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return rel, nil
}

// Cleanup removes every file under path except those named in exclude, then
// prunes empty directories bottom-up, path included. Failures are logged and
// never returned.
func (m *Manager) Cleanup(path string, exclude []string) {
	skip := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		if abs, err := filepath.Abs(e); err == nil {
			skip[abs] = struct{}{}
		}
	}

	var dirs []string
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			m.log.Warn().Err(err).Str("path", p).Msg("cleanup walk failed")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, p)
			return nil
		}
		abs, _ := filepath.Abs(p)
		if _, keep := skip[abs]; keep {
			return nil
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.log.Warn().Err(err).Str("path", p).Msg("cleanup remove file failed")
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.log.Warn().Err(err).Str("path", path).Msg("cleanup failed")
	}

	// Deepest first so parents see their children gone.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.log.Warn().Err(err).Str("path", dir).Msg("cleanup remove dir failed")
		}
	}
}

// CleanupUser removes the user's directory contents except exclude.
func (m *Manager) CleanupUser(userID string, exclude []string) {
	dir, err := m.userDir(strings.TrimSpace(userID))
	if err != nil {
		m.log.Warn().Err(err).Str("user_id", userID).Msg("cleanup user dir failed")
		return
	}
	m.Cleanup(dir, exclude)
}

type fileEntry struct {
	path    string
	modTime time.Time
}

// Prune keeps the newest keep files per kind prefix in dir and removes the
// rest. It returns the removed paths. A missing dir is not an error.
func (m *Manager) Prune(dir string, kinds []string, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	byKind := make(map[string][]fileEntry, len(kinds))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		kind := matchKind(e.Name(), kinds)
		if kind == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		byKind[kind] = append(byKind[kind], fileEntry{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}

	var removed []string
	for _, kind := range kinds {
		files := byKind[kind]
		sort.SliceStable(files, func(i, j int) bool {
			if files[i].modTime.Equal(files[j].modTime) {
				return files[i].path > files[j].path
			}
			return files[i].modTime.After(files[j].modTime)
		})
		if len(files) <= keep {
			continue
		}
		for _, f := range files[keep:] {
			if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				m.log.Warn().Err(err).Str("path", f.path).Msg("prune remove failed")
				continue
			}
			removed = append(removed, f.path)
		}
	}
	return removed, nil
}

// PruneUser applies Prune to the user's directory. It never creates one.
func (m *Manager) PruneUser(userID string, kinds []string, keep int) ([]string, error) {
	dir, err := m.userDir(strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	return m.Prune(dir, kinds, keep)
}

// PruneAll applies Prune to every user directory under the root.
func (m *Manager) PruneAll(kinds []string, keep int) ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("read temp root: %w", err)
	}
	var removed []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), userDirPrefix) {
			continue
		}
		got, err := m.Prune(filepath.Join(m.root, e.Name()), kinds, keep)
		if err != nil {
			m.log.Warn().Err(err).Str("dir", e.Name()).Msg("prune user dir failed")
			continue
		}
		removed = append(removed, got...)
	}
	return removed, nil
}

// Longest prefix wins so "llm" never shadows a longer kind.
func matchKind(name string, kinds []string) string {
	best := ""
	for _, k := range kinds {
		if strings.HasPrefix(name, k) && len(k) > len(best) {
			best = k
		}
	}
	return best
}
