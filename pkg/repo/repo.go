// Package repo ties the object and reference stores, configuration and merge
// machinery of a weave repository together.
package repo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/odvcencio/weave/internal/logging"
	"github.com/odvcencio/weave/pkg/badgerstore"
	"github.com/odvcencio/weave/pkg/config"
	"github.com/odvcencio/weave/pkg/gitstore"
	"github.com/odvcencio/weave/pkg/graph"
	"github.com/odvcencio/weave/pkg/mergebase"
	"github.com/odvcencio/weave/pkg/object"
	"github.com/odvcencio/weave/pkg/refs"
)

// DirName is the repository metadata directory.
const DirName = ".weave"

// DefaultBranch is the branch HEAD points at after Init.
const DefaultBranch = "refs/heads/main"

// Repo is an opened weave repository.
type Repo struct {
	RootDir string // directory containing .weave; empty for in-memory repos
	Dir     string // the .weave directory
	Objects object.Store
	Refs    refs.Store
	Config  *config.Config
	Log     logrus.FieldLogger

	closer io.Closer

	finderOnce sync.Once
	finder     *mergebase.Finder
	commits    *graph.CommitCache
	finderErr  error
}

// New assembles a repository from existing stores. cfg may be nil for
// defaults and log may be nil to discard logging.
func New(objects object.Store, refStore refs.Store, cfg *config.Config, log logrus.FieldLogger) *Repo {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Repo{
		Objects: objects,
		Refs:    refStore,
		Config:  cfg,
		Log:     logging.OrDiscard(log),
	}
}

// Init creates a new repository at path with the given configuration (nil
// for defaults). Returns an error if a .weave/ directory already exists.
func Init(path string, cfg *config.Config) (*Repo, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	dir := filepath.Join(path, DirName)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("init: repository already exists at %s", dir)
	}

	dirs := []string{dir}
	if cfg.Backend == "" || cfg.Backend == config.BackendFile {
		dirs = append(dirs,
			filepath.Join(dir, "objects"),
			filepath.Join(dir, "refs", "heads"),
			filepath.Join(dir, "logs", "refs", "heads"),
		)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("init: mkdir %s: %w", d, err)
		}
	}
	if err := config.Save(filepath.Join(dir, config.FileName), cfg); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	r, err := openAt(path, dir, cfg)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if fs, ok := r.Refs.(*refs.FileStore); ok {
		if err := fs.SetSymbolicHead(DefaultBranch); err != nil {
			r.Close()
			return nil, fmt.Errorf("init: %w", err)
		}
	}
	return r, nil
}

// Open searches upward from path for a .weave/ directory and opens the
// repository it describes.
func Open(path string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("open: abs path: %w", err)
	}

	cur := abs
	for {
		dir := filepath.Join(cur, DirName)
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			cfg, err := config.Load(config.Find(dir))
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			r, err := openAt(cur, dir, cfg)
			if err != nil {
				return nil, fmt.Errorf("open: %w", err)
			}
			return r, nil
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, errors.New("open: not a weave repository (or any parent up to /)")
		}
		cur = parent
	}
}

func openAt(root, dir string, cfg *config.Config) (*Repo, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	alg, err := cfg.Algorithm()
	if err != nil {
		return nil, err
	}

	r := &Repo{RootDir: root, Dir: dir, Config: cfg, Log: log}
	switch cfg.Backend {
	case "", config.BackendFile:
		r.Objects = object.NewFileStore(dir, alg)
		r.Refs = refs.NewFileStore(dir)
	case config.BackendBadger:
		db, err := badgerstore.Open(filepath.Join(dir, "badger"), alg, log)
		if err != nil {
			return nil, err
		}
		r.Objects, r.Refs, r.closer = db, db, db
	case config.BackendGit:
		gitDir := cfg.GitDir
		if !filepath.IsAbs(gitDir) {
			gitDir = filepath.Join(root, gitDir)
		}
		gs, err := gitstore.Open(gitDir)
		if err != nil {
			return nil, err
		}
		r.Objects, r.Refs = gs, gs
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	log.WithFields(logrus.Fields{
		"backend":   cfg.Backend,
		"algorithm": alg,
	}).Debug("repository opened")
	return r, nil
}

// Close releases backend resources.
func (r *Repo) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Finder returns the repository's shared merge-base finder. Commits are read
// through a bounded cache and pair results are memoized for the lifetime of
// the Repo.
func (r *Repo) Finder() (*mergebase.Finder, error) {
	r.finderOnce.Do(func() {
		r.commits, r.finderErr = graph.NewCommitCache(r.Objects, r.Config.Merge.CommitCacheSize)
		if r.finderErr != nil {
			return
		}
		r.finder = mergebase.NewFinder(r.commits,
			mergebase.WithMaxSteps(r.Config.Merge.MaxWalkSteps),
			mergebase.WithCache(mergebase.NewCache()),
		)
	})
	return r.finder, r.finderErr
}

// Reflog returns up to limit reflog entries for ref, newest first. Backends
// without a reflog return an error.
func (r *Repo) Reflog(ref string, limit int) ([]refs.LogEntry, error) {
	l, ok := r.Refs.(refs.Logger)
	if !ok {
		return nil, fmt.Errorf("reflog: %s backend keeps no reflog", r.Config.Backend)
	}
	return l.ReadReflog(refs.NormalizeName(ref), limit)
}
