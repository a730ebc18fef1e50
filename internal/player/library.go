package player

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/echochamber/pkg/audio"
)

// ErrNoStatements is returned when the operator-curated statement set is
// empty. The appliance refuses to start in that case.
var ErrNoStatements = errors.New("player: no statement clips found")

// Library is the set of ambient clips: a fixed list of statement clips and a
// user-recordings directory that is re-read on every [Library.Pick], so clips
// added while the appliance runs join the rotation.
type Library struct {
	statements []string
	userDir    string
}

// NewLibrary builds a Library from explicit statement paths. Paths that do
// not exist are dropped. userDir may be empty.
func NewLibrary(statements []string, userDir string) (*Library, error) {
	var kept []string
	for _, p := range statements {
		if _, err := os.Stat(p); err == nil {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNoStatements
	}
	return &Library{statements: kept, userDir: userDir}, nil
}

// ScanLibrary builds a Library from every playable clip in statementDir,
// excluding the paths listed in exclude (typically the acknowledgement clip).
func ScanLibrary(statementDir, userDir string, exclude ...string) (*Library, error) {
	found, err := listClips(statementDir)
	if err != nil {
		return nil, fmt.Errorf("player: scan %q: %w", statementDir, err)
	}
	found = slices.DeleteFunc(found, func(p string) bool {
		return slices.ContainsFunc(exclude, func(x string) bool { return samePath(p, x) })
	})
	if len(found) == 0 {
		return nil, fmt.Errorf("%w in %q", ErrNoStatements, statementDir)
	}
	return &Library{statements: found, userDir: userDir}, nil
}

// Statements returns a copy of the statement clip paths.
func (l *Library) Statements() []string {
	return slices.Clone(l.statements)
}

// UserClips lists the playable clips currently in the user directory. A
// missing directory yields no clips.
func (l *Library) UserClips() []string {
	if l.userDir == "" {
		return nil
	}
	clips, err := listClips(l.userDir)
	if err != nil {
		return nil
	}
	return clips
}

// Pick returns one clip chosen uniformly at random from the statements plus
// the current user clips. ok is false only if both sets are empty.
func (l *Library) Pick(rng *rand.Rand) (path string, ok bool) {
	all := append(l.Statements(), l.UserClips()...)
	if len(all) == 0 {
		return "", false
	}
	return all[rng.IntN(len(all))], true
}

// Size returns the number of clips a Pick would currently choose from.
func (l *Library) Size() int {
	return len(l.statements) + len(l.UserClips())
}

func listClips(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if audio.SupportedClipExt(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(out)
	return out, nil
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}
