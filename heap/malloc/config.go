package malloc

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/joshuapare/heapkit/heap/brk"
	"github.com/joshuapare/heapkit/heap/dirty"
)

// Arena backings accepted by Config.Backing.
const (
	BackingMem  = "mem"
	BackingMmap = "mmap"
	BackingFile = "file"
)

// DefaultArenaLimit is the reservation used when none is configured.
const DefaultArenaLimit = 64 << 20

var (
	supportedBackings = []string{BackingMem, BackingMmap, BackingFile}

	errUnsupportedBacking = errors.New("unsupported arena backing")
)

// ByteSize is a byte count that reads humanized values such as "64MiB" from
// flags and YAML.
type ByteSize int

// String implements flag.Value. The humanized form is used only when it
// parses back to exactly s.
func (s ByteSize) String() string {
	h := humanize.IBytes(uint64(s))
	if n, err := humanize.ParseBytes(h); err == nil && n == uint64(s) {
		return h
	}
	return strconv.Itoa(int(s))
}

// Set implements flag.Value.
func (s *ByteSize) Set(v string) error {
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return err
	}
	if n > uint64(^uint(0)>>1) {
		return fmt.Errorf("byte size %q overflows int", v)
	}
	*s = ByteSize(n)
	return nil
}

// UnmarshalYAML accepts both plain integers and humanized strings.
func (s *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return s.Set(raw)
}

// MarshalYAML writes the humanized form.
func (s ByteSize) MarshalYAML() (any, error) {
	return s.String(), nil
}

// Config describes an allocator and the arena behind it.
type Config struct {
	Backing       string   `yaml:"backing"`
	ArenaLimit    ByteSize `yaml:"arena_limit"`
	Path          string   `yaml:"path"`
	ValidateFrees bool     `yaml:"validate"`
	RoundSizes    bool     `yaml:"round_sizes"`
	TrackDirty    bool     `yaml:"track_dirty"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Backing:    BackingMem,
		ArenaLimit: DefaultArenaLimit,
		TrackDirty: true,
	}
}

// RegisterFlags registers the allocator flags on f without a prefix.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix(f, "")
}

// RegisterFlagsWithPrefix registers the allocator flags on f, each name
// prefixed with prefix, and resets cfg to the defaults they carry.
func (cfg *Config) RegisterFlagsWithPrefix(f *flag.FlagSet, prefix string) {
	def := DefaultConfig()
	cfg.ArenaLimit = def.ArenaLimit
	f.StringVar(&cfg.Backing, prefix+"backing", def.Backing, fmt.Sprintf("Arena backing. Supported values: %s.", strings.Join(supportedBackings, ", ")))
	f.Var(&cfg.ArenaLimit, prefix+"arena-limit", "Arena reservation, such as 64MiB. The arena never grows past it.")
	f.StringVar(&cfg.Path, prefix+"path", def.Path, "Arena file for the file backing.")
	f.BoolVar(&cfg.ValidateFrees, prefix+"validate", def.ValidateFrees, "Reject frees of corrupt, foreign or already free blocks.")
	f.BoolVar(&cfg.RoundSizes, prefix+"round-sizes", def.RoundSizes, "Round requests up to 16 bytes so payloads stay 16-byte aligned.")
	f.BoolVar(&cfg.TrackDirty, prefix+"track-dirty", def.TrackDirty, "Track written pages so Sync flushes only those.")
}

// Validate reports the first setting that cannot open an arena.
func (cfg *Config) Validate() error {
	if !slices.Contains(supportedBackings, cfg.Backing) {
		return fmt.Errorf("%w: %q, supported values: %v", errUnsupportedBacking, cfg.Backing, supportedBackings)
	}
	if cfg.ArenaLimit <= 0 {
		return fmt.Errorf("arena limit must be positive, got %d", cfg.ArenaLimit)
	}
	if cfg.Backing == BackingFile && cfg.Path == "" {
		return errors.New("file backing requires a path")
	}
	return nil
}

// LoadConfig reads a YAML config file over the defaults. Unknown keys are an
// error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// OpenBreak builds the arena described by cfg.
func OpenBreak(cfg Config) (brk.Break, error) {
	limit := int(cfg.ArenaLimit)
	switch cfg.Backing {
	case BackingMem:
		return brk.NewMem(limit), nil
	case BackingMmap:
		m, err := brk.NewMapped(limit)
		if err != nil {
			return nil, err
		}
		return m, nil
	case BackingFile:
		f, err := brk.OpenFile(cfg.Path, limit)
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedBacking, cfg.Backing)
	}
}

// NewFromConfig validates cfg, opens its arena and returns an Allocator over
// it. The Allocator owns the arena; Close releases it.
func NewFromConfig(cfg Config, reg prometheus.Registerer, logger *slog.Logger) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := OpenBreak(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s arena: %w", cfg.Backing, err)
	}
	opts := &Options{
		Logger:     logger,
		Registerer: reg,
		Validate:   cfg.ValidateFrees,
		RoundSizes: cfg.RoundSizes,
	}
	if cfg.TrackDirty {
		opts.Dirty = dirty.NewTracker()
	}
	a, err := New(b, opts)
	if err != nil {
		return nil, errors.Join(err, b.Close())
	}
	return a, nil
}
