// Package modes holds the static mode catalog: which model and system
// instruction each mode talks to. The catalog is loaded once at startup and
// never edited at runtime.
package modes

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/blue-shark/internal/domain"
)

const (
	ModelFlash = "gemini-3-flash-preview"
	ModelPro   = "gemini-3-pro-preview"

	// ModelDual is the pseudo model name a dual mode advertises.
	ModelDual = "shark-tank-dual"
)

var defaults = []domain.ModeConfig{
	{
		Mode:              domain.ModeProChat,
		Label:             "Pro Chat (Gemini 3)",
		Description:       "Complex reasoning and in-depth analysis.",
		Model:             ModelPro,
		SystemInstruction: "You are Blue Shark, a helpful and highly intelligent AI assistant.",
	},
	{
		Mode:              domain.ModeSharkTank,
		Label:             "Shark Tank (Dual Mode)",
		Description:       "Compare results from Flash (Speed) and Pro (Depth).",
		Model:             ModelDual,
		SystemInstruction: "You are a dual-model AI system.",
		Dual:              true,
		Primary: domain.ModelTarget{
			Name:              "Flash Shark",
			Model:             ModelFlash,
			SystemInstruction: "You are Flash Shark, a fast, decisive, and efficient AI advisor. Be concise and get straight to the point.",
		},
		Secondary: domain.ModelTarget{
			Name:              "Pro Shark",
			Model:             ModelPro,
			SystemInstruction: "You are Pro Shark, a highly analytical, strategic, and detailed AI advisor. Provide deep insights and comprehensive reasoning.",
		},
	},
	{
		Mode:              domain.ModeHomework,
		Label:             "Homework Helper",
		Description:       "Clear explanations for academic queries.",
		Model:             ModelFlash,
		SystemInstruction: "You are a patient academic tutor named Blue Shark. Provide step-by-step explanations.",
	},
	{
		Mode:              domain.ModeCoding,
		Label:             "Code Master",
		Description:       "Expert full-stack engineering and debugging.",
		Model:             ModelPro,
		SystemInstruction: "You are a senior software engineer named Blue Shark. Provide clean, performant, type-safe code.",
	},
	{
		Mode:              domain.ModeSecurity,
		Label:             "Ethical Hacking",
		Description:       "Security analysis and CTF strategies.",
		Model:             ModelPro,
		SystemInstruction: "You are an ethical cybersecurity expert named Blue Shark. Assist with CTF challenges and remediation. Refuse illegal requests.",
	},
}

// Catalog is an immutable mode -> configuration mapping.
type Catalog struct {
	order   []domain.Mode
	configs map[domain.Mode]domain.ModeConfig
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := newCatalog(defaults)
	if err != nil {
		panic(err)
	}
	return c
}

func newCatalog(cfgs []domain.ModeConfig) (*Catalog, error) {
	c := &Catalog{configs: make(map[domain.Mode]domain.ModeConfig, len(cfgs))}
	for _, cfg := range cfgs {
		if cfg.Mode == "" {
			return nil, fmt.Errorf("mode config without mode tag")
		}
		if cfg.Dual {
			if cfg.Primary.Model == "" || cfg.Secondary.Model == "" {
				return nil, fmt.Errorf("dual mode %s needs primary and secondary models", cfg.Mode)
			}
		} else if cfg.Model == "" {
			return nil, fmt.Errorf("mode %s has no model", cfg.Mode)
		}
		if _, dup := c.configs[cfg.Mode]; dup {
			return nil, fmt.Errorf("mode %s configured twice", cfg.Mode)
		}
		c.order = append(c.order, cfg.Mode)
		c.configs[cfg.Mode] = cfg
	}
	return c, nil
}

type catalogFile struct {
	Modes []domain.ModeConfig `yaml:"modes"`
}

// LoadFile reads a YAML catalog. Modes it names replace the built-in entry
// of the same tag; unnamed built-in modes are kept.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mode catalog: %w", err)
	}
	return Parse(data)
}

// Parse is LoadFile without the file.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing mode catalog: %w", err)
	}

	overrides := make(map[domain.Mode]domain.ModeConfig, len(f.Modes))
	for i := range f.Modes {
		f.Modes[i].Mode = domain.Mode(strings.ToUpper(string(f.Modes[i].Mode))).Normalize()
		overrides[f.Modes[i].Mode] = f.Modes[i]
	}

	merged := make([]domain.ModeConfig, 0, len(defaults)+len(overrides))
	for _, d := range defaults {
		if o, ok := overrides[d.Mode]; ok {
			merged = append(merged, o)
			delete(overrides, d.Mode)
			continue
		}
		merged = append(merged, d)
	}
	for _, m := range f.Modes {
		if o, ok := overrides[m.Mode]; ok {
			merged = append(merged, o)
			delete(overrides, m.Mode)
		}
	}

	return newCatalog(merged)
}

// Get returns the configuration of mode. Deprecated tags resolve to their
// replacement.
func (c *Catalog) Get(mode domain.Mode) (domain.ModeConfig, bool) {
	cfg, ok := c.configs[mode.Normalize()]
	return cfg, ok
}

// Has reports whether mode is known.
func (c *Catalog) Has(mode domain.Mode) bool {
	_, ok := c.Get(mode)
	return ok
}

// All returns the configurations in catalog order.
func (c *Catalog) All() []domain.ModeConfig {
	out := make([]domain.ModeConfig, 0, len(c.order))
	for _, m := range c.order {
		out = append(out, c.configs[m])
	}
	return out
}

// IsPremium reports whether a model needs a user-selected paid credential.
func IsPremium(model string) bool {
	return strings.Contains(model, "gemini-3-pro") || model == ModelDual
}
