package config

import (
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

// Config holds verifier settings
type Config struct {
	// Budget caps the number of interleavings explored; 0 means no cap.
	Budget        uint64 `yaml:"budget"`
	Prune         bool   `yaml:"prune"`
	LogLevel      string `yaml:"log_level"`
	WithTrace     bool   `yaml:"with_trace"`
	ProgressEvery uint64 `yaml:"progress_every"`

	// harness only
	Scenario string `yaml:"scenario"`
	Threads  int    `yaml:"threads"`
}

// Default returns full enumeration with pruning off.
func Default() *Config {
	return &Config{
		LogLevel:      "info",
		ProgressEvery: 10000,
		Scenario:      "fetch-add",
		Threads:       3,
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	conf := Default()
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.UnmarshalStrict(data, conf); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks values that cannot be expressed by the field types.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if c.Threads < 0 {
		return errors.Errorf("threads must not be negative, got %d", c.Threads)
	}
	return nil
}

// Level returns the parsed log level, info if it is invalid.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Parse builds a config from command line arguments. A --config file is
// applied first; flags given explicitly override it.
func Parse(args []string) (*Config, error) {
	def := Default()
	var (
		path string
		flg  Config
	)
	fs := pflag.NewFlagSet("interleave", pflag.ContinueOnError)
	fs.StringVar(&path, "config", "", "YAML config file")
	fs.Uint64Var(&flg.Budget, "budget", def.Budget, "maximum interleavings to explore, 0 for all")
	fs.BoolVar(&flg.Prune, "prune", def.Prune, "skip interleavings equivalent by adjacent independence")
	fs.StringVar(&flg.LogLevel, "log-level", def.LogLevel, "logrus level")
	fs.BoolVar(&flg.WithTrace, "trace", def.WithTrace, "record zipkin spans")
	fs.Uint64Var(&flg.ProgressEvery, "progress-every", def.ProgressEvery, "log progress every N interleavings")
	fs.StringVar(&flg.Scenario, "scenario", def.Scenario, "litmus scenario to verify")
	fs.IntVarP(&flg.Threads, "threads", "n", def.Threads, "number of threads in the scenario")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	conf := def
	if path != "" {
		var err error
		if conf, err = Load(path); err != nil {
			return nil, err
		}
	}
	if fs.Changed("budget") {
		conf.Budget = flg.Budget
	}
	if fs.Changed("prune") {
		conf.Prune = flg.Prune
	}
	if fs.Changed("log-level") {
		conf.LogLevel = flg.LogLevel
	}
	if fs.Changed("trace") {
		conf.WithTrace = flg.WithTrace
	}
	if fs.Changed("progress-every") {
		conf.ProgressEvery = flg.ProgressEvery
	}
	if fs.Changed("scenario") {
		conf.Scenario = flg.Scenario
	}
	if fs.Changed("threads") {
		conf.Threads = flg.Threads
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Get parses the process arguments and exits on error.
func Get() *Config {
	conf, err := Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return conf
}
