package registry

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/osintops/dragnet/internal/model"
)

// LoadFile reads one catalog file, choosing the decoder by extension.
// Unsupported extensions are skipped with a warning.
func LoadFile(path string) ([]*model.Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read catalog file")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(raw), nil
	case ".yaml", ".yml":
		return ParseYAML(raw), nil
	default:
		zap.L().Warn("registry: unsupported catalog extension", zap.String("path", path))
		return nil, nil
	}
}

// LoadPath builds a Registry from a catalog file or a directory of catalog
// files. Directory entries load in name order so later files can shadow
// earlier ids deterministically.
func LoadPath(path string) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: stat catalog path")
	}

	if !info.IsDir() {
		sources, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return New(sources), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read catalog dir")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var sources []*model.Source
	for _, name := range names {
		loaded, err := LoadFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		sources = append(sources, loaded...)
	}

	reg := New(sources)
	zap.L().Info("registry: loaded sources",
		zap.Int("files", len(names)),
		zap.Int("sources", reg.Len()),
		zap.Int("jurisdictions", len(reg.Jurisdictions())))
	return reg, nil
}
