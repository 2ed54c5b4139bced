package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/zjrosen/elastixctl/internal/config"
	"github.com/zjrosen/elastixctl/internal/flags"
	"github.com/zjrosen/elastixctl/internal/infrastructure/sqlite"
	"github.com/zjrosen/elastixctl/internal/log"
	"github.com/zjrosen/elastixctl/internal/paths"
	"github.com/zjrosen/elastixctl/internal/presets/application"
	"github.com/zjrosen/elastixctl/internal/presets/domain"
	"github.com/zjrosen/elastixctl/internal/resources"
	"github.com/zjrosen/elastixctl/internal/scene"
)

// bundledLocation is shown as the folder of the embedded catalog.
const bundledLocation = "(bundled)"

// errPresetNotFound is returned when no preset has the requested id.
var errPresetNotFound = errors.New("preset not found")

// services holds what the preset commands share.
type services struct {
	catalog *application.Catalog
	close   func() error
}

// openServices builds the preset catalog from cfg. Store warnings go to
// stderr through sink. With the scene-persistence flag the in-session
// presets live in the sqlite scene database; otherwise they exist only for
// the current command.
func openServices(cfg config.Config, fr *flags.Registry, sink log.Sink) (*services, error) {
	builtin := builtinStore(cfg)
	user := application.NewUserStore(paths.UserPresetsDir(cfg.Presets.UserDir))

	var sc scene.Scene = scene.NewMemory()
	closeFn := func() error { return nil }
	if fr.Enabled(flags.FlagScenePersistence) {
		path := cfg.Scene.Path
		if path == "" {
			path = config.DefaultScenePath()
		}
		db, err := sqlite.NewDB(paths.ExpandHome(path))
		if err != nil {
			return nil, fmt.Errorf("opening scene database: %w", err)
		}
		sc = db.Scene()
		closeFn = db.Close
	}

	catalog := application.NewCatalog(builtin, user, application.NewSceneStore(sc))
	catalog.SetLogSink(sink)
	return &services{catalog: catalog, close: closeFn}, nil
}

func builtinStore(cfg config.Config) *application.BuiltinStore {
	if cfg.Presets.BuiltinCatalog == "" {
		return application.NewBuiltinStore(resources.FS(), resources.CatalogPath, bundledLocation)
	}
	path := paths.ExpandHome(cfg.Presets.BuiltinCatalog)
	dir := filepath.Dir(path)
	return application.NewBuiltinStore(os.DirFS(dir), filepath.Base(path), dir)
}

// stderrSink prints user-visible store and runner lines.
func stderrSink(w io.Writer) log.Sink {
	return func(line string) { _, _ = fmt.Fprintln(w, line) }
}

// findPreset resolves ref as a preset id first and then as an index into the
// merged list.
func findPreset(ctx context.Context, c *application.Catalog, ref string) (*domain.ParameterSet, error) {
	p, err := c.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}
	if i, convErr := strconv.Atoi(ref); convErr == nil {
		all, err := c.All(ctx, false)
		if err != nil && len(all) == 0 {
			return nil, err
		}
		if i >= 0 && i < len(all) {
			return all[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", ref, errPresetNotFound)
}
