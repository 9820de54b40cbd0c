// Package catalogconfig bootstraps a catalog from a YAML description of the
// mission tree, its products and the processes that build them.
package catalogconfig

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	types "github.com/yungbote/dbprocessing/internal/domain"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

type Config struct {
	Mission    Mission     `yaml:"mission"`
	Satellites []Satellite `yaml:"satellites"`
	Processes  []Process   `yaml:"processes"`
}

type Mission struct {
	Name         string `yaml:"name"`
	RootDir      string `yaml:"rootdir"`
	IncomingDir  string `yaml:"incoming_dir"`
	CodeDir      string `yaml:"codedir"`
	InspectorDir string `yaml:"inspectordir"`
	ErrorDir     string `yaml:"errordir"`
}

type Satellite struct {
	Name        string       `yaml:"name"`
	Instruments []Instrument `yaml:"instruments"`
}

type Instrument struct {
	Name     string    `yaml:"name"`
	Products []Product `yaml:"products"`
}

type Product struct {
	Name         string     `yaml:"name"`
	RelativePath string     `yaml:"relative_path"`
	Level        float64    `yaml:"level"`
	Format       string     `yaml:"format"`
	Description  string     `yaml:"description"`
	Inspector    *Inspector `yaml:"inspector"`
}

type Inspector struct {
	Filename        string          `yaml:"filename"`
	RelativePath    string          `yaml:"relative_path"`
	Description     string          `yaml:"description"`
	Version         version.Version `yaml:"version"`
	OutputInterface int             `yaml:"output_interface"`
	Arguments       string          `yaml:"arguments"`
}

type Process struct {
	Name          string  `yaml:"name"`
	OutputProduct string  `yaml:"output_product"`
	Timebase      string  `yaml:"timebase"`
	ExtraParams   string  `yaml:"extra_params"`
	Inputs        []Input `yaml:"inputs"`
	Codes         []Code  `yaml:"codes"`
}

type Input struct {
	Product   string `yaml:"product"`
	Optional  bool   `yaml:"optional"`
	Yesterday int    `yaml:"yesterday"`
	Tomorrow  int    `yaml:"tomorrow"`
}

type Code struct {
	Filename        string          `yaml:"filename"`
	RelativePath    string          `yaml:"relative_path"`
	Description     string          `yaml:"description"`
	Version         version.Version `yaml:"version"`
	OutputInterface int             `yaml:"output_interface"`
	Start           string          `yaml:"start"`
	Stop            string          `yaml:"stop"`
	Arguments       string          `yaml:"arguments"`
	Cpu             *int            `yaml:"cpu"`
	Ram             *float64        `yaml:"ram"`
	// Retired codes are recorded inactive and never picked to run.
	Retired bool `yaml:"retired"`
}

// Load reads and validates a catalog config file. Unknown keys are errors.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: catalog config: %v", dperrors.ErrInvalidArgument, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the references inside the config: every process input
// and output must name a product defined in the same file.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: catalog config: %s", dperrors.ErrInvalidArgument, fmt.Sprintf(format, args...))
	}
	if strings.TrimSpace(c.Mission.Name) == "" {
		return invalid("mission name required")
	}
	if c.Mission.RootDir == "" || c.Mission.IncomingDir == "" {
		return invalid("mission %s needs rootdir and incoming_dir", c.Mission.Name)
	}
	products := map[string]bool{}
	for _, sat := range c.Satellites {
		if sat.Name == "" {
			return invalid("satellite without a name")
		}
		for _, inst := range sat.Instruments {
			if inst.Name == "" {
				return invalid("instrument without a name on satellite %s", sat.Name)
			}
			for _, p := range inst.Products {
				if p.Name == "" || p.Format == "" {
					return invalid("product on instrument %s needs name and format", inst.Name)
				}
				if products[p.Name] {
					return invalid("product %s defined twice", p.Name)
				}
				products[p.Name] = true
			}
		}
	}
	processes := map[string]bool{}
	for _, proc := range c.Processes {
		if proc.Name == "" {
			return invalid("process without a name")
		}
		if processes[proc.Name] {
			return invalid("process %s defined twice", proc.Name)
		}
		processes[proc.Name] = true
		tb := types.Timebase(strings.ToUpper(proc.Timebase))
		if !tb.Valid() {
			return invalid("process %s timebase %q", proc.Name, proc.Timebase)
		}
		if tb == types.TimebaseRun {
			if proc.OutputProduct != "" {
				return invalid("RUN process %s cannot have an output product", proc.Name)
			}
		} else if !products[proc.OutputProduct] {
			return invalid("process %s output product %q is not defined", proc.Name, proc.OutputProduct)
		}
		for _, in := range proc.Inputs {
			if !products[in.Product] {
				return invalid("process %s input product %q is not defined", proc.Name, in.Product)
			}
		}
		for _, code := range proc.Codes {
			if code.Filename == "" {
				return invalid("code of process %s needs a filename", proc.Name)
			}
			if code.Version.Interface < 1 {
				return invalid("code %s version %s", code.Filename, code.Version)
			}
		}
	}
	return nil
}
