package ingress

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/pipebuffer/pipebuffer/internal/config"
	"github.com/pipebuffer/pipebuffer/internal/telemetry"
)

//////////////
//  CONFIG  //
//////////////

// FileConfig contains the configuration for the file ingress stage.
type FileConfig struct {
	// Path is the path of the file to read.
	Path string

	// StagingSize is the size of the staging buffer used to batch reads
	// from the file before copying them into the shared buffer.
	//
	// Default: 64 KiB
	StagingSize int

	// Follow states whether the stage should keep reading bytes appended
	// to the file after reaching EOF instead of closing the stream.
	// The stage then stops only when the file is removed or renamed.
	//
	// Default: false
	Follow bool
}

// DefaultFileConfig returns the default configuration for the file ingress stage.
func DefaultFileConfig(path string) *FileConfig {
	return &FileConfig{
		Path:        path,
		StagingSize: DefaultStagingSize,
	}
}

// Validate checks the configuration.
func (c *FileConfig) Validate(ac *config.AnomalyCollector) {
	config.CheckNotNegative(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
	config.CheckNotZero(ac, "StagingSize", &c.StagingSize, DefaultStagingSize)
}

//////////////
//  SOURCE  //
//////////////

var _ source = (*fileSource)(nil)

type fileSource struct {
	tel *telemetry.Telemetry

	cfg *FileConfig

	file    *os.File
	watcher *fsnotify.Watcher

	// watchedPath is the cleaned file path, compared against the names
	// of the events delivered for the parent directory.
	watchedPath string

	// Metrics
	readBytes  atomic.Int64
	readChunks atomic.Int64
}

func newFileSource(cfg *FileConfig) *fileSource {
	return &fileSource{
		cfg: cfg,
	}
}

func (fs *fileSource) setTelemetry(tel *telemetry.Telemetry) {
	fs.tel = tel
}

func (fs *fileSource) init() error {
	file, err := os.Open(fs.cfg.Path)
	if err != nil {
		return err
	}
	fs.file = file

	// The watcher is only needed to wake the reader on appended bytes.
	// It watches the parent directory instead of the file: a watch on the
	// path itself stops delivering remove events while the file is held
	// open, and the reader must keep its handle to drain the last bytes.
	if fs.cfg.Follow {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}

		fs.watchedPath = filepath.Clean(fs.cfg.Path)

		if err := watcher.Add(filepath.Dir(fs.watchedPath)); err != nil {
			return err
		}

		fs.watcher = watcher
	}

	fs.initMetrics()

	return nil
}

func (fs *fileSource) initMetrics() {
	fs.tel.NewCounter("read_bytes", func() int64 { return fs.readBytes.Load() })
	fs.tel.NewCounter("read_chunks", func() int64 { return fs.readChunks.Load() })
}

func (fs *fileSource) run(ctx context.Context, out *byteBuf) {
	defer out.CloseWrite()

	fs.tel.LogInfo("reading file", "path", fs.cfg.Path, "follow", fs.cfg.Follow)

	staging := make([]byte, fs.cfg.StagingSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := fs.file.Read(staging)

		if n > 0 {
			if _, werr := out.Write(staging[:n]); werr != nil {
				fs.tel.LogWarn("output buffer closed, stopping", "unwritten_bytes", n)
				return
			}

			fs.readBytes.Add(int64(n))
			fs.readChunks.Add(1)
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				fs.tel.LogError("failed to read file", err, "path", fs.cfg.Path)
				return
			}

			if !fs.cfg.Follow {
				fs.tel.LogDebug("file exhausted, closing buffer", "path", fs.cfg.Path)
				return
			}

			// EOF in follow mode, wait for appended bytes
			if stop := fs.waitForAppend(ctx); stop {
				return
			}
		}
	}
}

// waitForAppend blocks until the watched file grows and reports whether
// the reader should stop instead of continuing.
func (fs *fileSource) waitForAppend(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return true

		case event, ok := <-fs.watcher.Events:
			if !ok {
				return true
			}

			// The whole directory is watched, other children are noise
			if filepath.Clean(event.Name) != fs.watchedPath {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write {
				return false
			}

			if event.Op&fsnotify.Remove == fsnotify.Remove ||
				event.Op&fsnotify.Rename == fsnotify.Rename {

				fs.tel.LogInfo("file removed, closing buffer", "path", fs.cfg.Path)
				return true
			}

		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return true
			}

			fs.tel.LogError("watcher error", err)
		}
	}
}

func (fs *fileSource) close() {
	if fs.watcher != nil {
		fs.watcher.Close()
	}

	if fs.file != nil {
		fs.file.Close()
	}
}

/////////////
//  STAGE  //
/////////////

// FileStage is an ingress stage that streams the contents of a file,
// optionally following it as it grows.
type FileStage struct {
	*stage

	source *fileSource
}

// NewFileStage returns a new file ingress stage.
func NewFileStage(out *byteBuf, cfg *FileConfig) *FileStage {
	source := newFileSource(cfg)

	return &FileStage{
		stage: newStage("file", source, out, cfg),

		source: source,
	}
}

// Init initializes the stage.
func (fs *FileStage) Init(ctx context.Context) error {
	if err := fs.stage.Init(ctx); err != nil {
		return err
	}

	return fs.source.init()
}

// Close closes the stage.
func (fs *FileStage) Close() {
	fs.source.close()
	fs.stage.Close()
}
