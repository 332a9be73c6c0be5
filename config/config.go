package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/corpsim/internal/entity"
)

// Provider configures one AI reasoning backend. Exactly one provider should
// be marked default; the rest are fallbacks in listed order.
type Provider struct {
	Name             string          `yaml:"name"`
	APIURL           string          `yaml:"api_url"`
	APIKeyEnv        string          `yaml:"api_key_env"`
	Model            string          `yaml:"model"`
	InputPricePer1K  decimal.Decimal `yaml:"-"`
	OutputPricePer1K decimal.Decimal `yaml:"-"`
	Simulated        bool            `yaml:"simulated"`
	Default          bool            `yaml:"default"`
}

// SeedEmployee overrides generated roster attributes for one employee of a
// seed company.
type SeedEmployee struct {
	Name          string `yaml:"name"`
	Role          string `yaml:"role"`
	Personality   string `yaml:"personality"`
	DecisionStyle string `yaml:"decision_style"`
	Level         int    `yaml:"level"`
}

// SeedCompany describes a company created at startup and after reset.
type SeedCompany struct {
	Name      string          `yaml:"name"`
	Topology  string          `yaml:"topology"`
	Size      int             `yaml:"size"`
	Funds     decimal.Decimal `yaml:"-"`
	Employees []SeedEmployee  `yaml:"employees"`
}

// Config holds the full runtime configuration.
type Config struct {
	ListenAddr string
	DataDir    string
	Seed       int64

	Mode          entity.SimMode
	RoundInterval time.Duration

	MaxConcurrentCalls   int
	CallTimeout          time.Duration
	MaxCostPerCall       decimal.Decimal
	VotingDeadlineRounds int64
	EscalationThreshold  int

	BaseFundingRate      decimal.Decimal
	OperatingCostPerHead decimal.Decimal

	Providers []Provider
	Companies []SeedCompany
}

// ConfigTmp is the YAML file shape. Decimal fields travel as strings so the
// file stays human-editable; Load converts them.
type ConfigTmp struct {
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`
	Seed       int64  `yaml:"seed"`

	Mode          string        `yaml:"mode"`
	RoundInterval time.Duration `yaml:"round_interval"`

	MaxConcurrentCalls   int           `yaml:"max_concurrent_calls"`
	CallTimeout          time.Duration `yaml:"call_timeout"`
	MaxCostPerCallStr    string        `yaml:"max_cost_per_call,omitempty"`
	VotingDeadlineRounds int64         `yaml:"voting_deadline_rounds"`
	EscalationThreshold  int           `yaml:"escalation_importance_threshold"`

	BaseFundingRateStr      string `yaml:"base_funding_rate,omitempty"`
	OperatingCostPerHeadStr string `yaml:"operating_cost_per_head,omitempty"`

	Providers []ProviderTmp `yaml:"providers"`
	Companies []CompanyTmp  `yaml:"companies"`
}

type ProviderTmp struct {
	Name                string `yaml:"name"`
	APIURL              string `yaml:"api_url"`
	APIKeyEnv           string `yaml:"api_key_env"`
	Model               string `yaml:"model"`
	InputPricePer1KStr  string `yaml:"input_price_per_1k,omitempty"`
	OutputPricePer1KStr string `yaml:"output_price_per_1k,omitempty"`
	Simulated           bool   `yaml:"simulated"`
	Default             bool   `yaml:"default"`
}

type CompanyTmp struct {
	Name      string         `yaml:"name"`
	Topology  string         `yaml:"topology"`
	Size      int            `yaml:"size"`
	FundsStr  string         `yaml:"funds,omitempty"`
	Employees []SeedEmployee `yaml:"employees"`
}

// Default returns a configuration that runs fully offline on the simulated
// provider.
func Default() Config {
	return Config{
		ListenAddr:           ":8080",
		DataDir:              "./data",
		Seed:                 1,
		Mode:                 entity.ModeAuto,
		RoundInterval:        30 * time.Second,
		MaxConcurrentCalls:   4,
		CallTimeout:          30 * time.Second,
		MaxCostPerCall:       decimal.RequireFromString("0.05"),
		VotingDeadlineRounds: 2,
		EscalationThreshold:  3,
		BaseFundingRate:      decimal.NewFromInt(1000),
		OperatingCostPerHead: decimal.NewFromInt(100),
		Providers:            []Provider{{Name: "sim", Simulated: true, Default: true}},
	}
}

// Load reads the YAML config at path on top of defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	var tmp ConfigTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}

	cfg := Default()
	if tmp.ListenAddr != "" {
		cfg.ListenAddr = tmp.ListenAddr
	}
	if tmp.DataDir != "" {
		cfg.DataDir = tmp.DataDir
	}
	if tmp.Seed != 0 {
		cfg.Seed = tmp.Seed
	}
	if tmp.Mode != "" {
		if !entity.ValidMode(tmp.Mode) {
			return Config{}, errors.Errorf("invalid mode %q", tmp.Mode)
		}
		cfg.Mode = entity.SimMode(tmp.Mode)
	}
	if tmp.RoundInterval > 0 {
		cfg.RoundInterval = tmp.RoundInterval
	}
	if tmp.MaxConcurrentCalls > 0 {
		cfg.MaxConcurrentCalls = tmp.MaxConcurrentCalls
	}
	if tmp.CallTimeout > 0 {
		cfg.CallTimeout = tmp.CallTimeout
	}
	if tmp.VotingDeadlineRounds > 0 {
		cfg.VotingDeadlineRounds = tmp.VotingDeadlineRounds
	}
	if tmp.EscalationThreshold > 0 {
		cfg.EscalationThreshold = tmp.EscalationThreshold
	}

	if cfg.MaxCostPerCall, err = decimalOr(tmp.MaxCostPerCallStr, cfg.MaxCostPerCall); err != nil {
		return Config{}, errors.Wrap(err, "max_cost_per_call")
	}
	if cfg.BaseFundingRate, err = decimalOr(tmp.BaseFundingRateStr, cfg.BaseFundingRate); err != nil {
		return Config{}, errors.Wrap(err, "base_funding_rate")
	}
	if cfg.OperatingCostPerHead, err = decimalOr(tmp.OperatingCostPerHeadStr, cfg.OperatingCostPerHead); err != nil {
		return Config{}, errors.Wrap(err, "operating_cost_per_head")
	}

	if len(tmp.Providers) > 0 {
		cfg.Providers = cfg.Providers[:0]
		for _, p := range tmp.Providers {
			prov := Provider{
				Name:      p.Name,
				APIURL:    p.APIURL,
				APIKeyEnv: p.APIKeyEnv,
				Model:     p.Model,
				Simulated: p.Simulated,
				Default:   p.Default,
			}
			if prov.InputPricePer1K, err = decimalOr(p.InputPricePer1KStr, decimal.Zero); err != nil {
				return Config{}, errors.Wrapf(err, "provider %s input price", p.Name)
			}
			if prov.OutputPricePer1K, err = decimalOr(p.OutputPricePer1KStr, decimal.Zero); err != nil {
				return Config{}, errors.Wrapf(err, "provider %s output price", p.Name)
			}
			cfg.Providers = append(cfg.Providers, prov)
		}
	}

	for _, c := range tmp.Companies {
		seed := SeedCompany{
			Name:      c.Name,
			Topology:  c.Topology,
			Size:      c.Size,
			Employees: c.Employees,
		}
		if seed.Funds, err = decimalOr(c.FundsStr, decimal.NewFromInt(50000)); err != nil {
			return Config{}, errors.Wrapf(err, "company %s funds", c.Name)
		}
		cfg.Companies = append(cfg.Companies, seed)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("at least one provider is required")
	}
	defaults := 0
	for _, p := range c.Providers {
		if p.Default {
			defaults++
		}
		if !p.Simulated && p.APIURL == "" {
			return errors.Errorf("provider %s: api_url is required", p.Name)
		}
	}
	if defaults > 1 {
		return errors.New("only one provider may be marked default")
	}
	for _, comp := range c.Companies {
		if !entity.ValidTopology(comp.Topology) {
			return errors.Errorf("company %s: invalid topology %q", comp.Name, comp.Topology)
		}
		if comp.Topology == string(entity.TopologyHierarchical) && comp.Size < 4 {
			return errors.Errorf("company %s: hierarchical companies need at least 4 employees", comp.Name)
		}
		if comp.Size < 1 {
			return errors.Errorf("company %s: size must be positive", comp.Name)
		}
		if len(comp.Employees) > comp.Size {
			return errors.Errorf("company %s: %d employee overrides for %d roster slots", comp.Name, len(comp.Employees), comp.Size)
		}
		if err := comp.validateRoles(); err != nil {
			return err
		}
	}
	return nil
}

// validateRoles checks that role overrides keep the roster legal for the
// topology: collectives are worker-only, hierarchies keep exactly one CEO
// and at least one manager. Overrides are positional, so slots without one
// keep their generated role.
func (comp SeedCompany) validateRoles() error {
	top := entity.Topology(comp.Topology)
	counts := make(map[entity.Role]int)
	for i := 0; i < comp.Size; i++ {
		role := entity.RoleForSlot(top, i)
		if i < len(comp.Employees) && comp.Employees[i].Role != "" {
			if !entity.ValidRole(comp.Employees[i].Role) {
				return errors.Errorf("company %s: employee %d: unknown role %q", comp.Name, i, comp.Employees[i].Role)
			}
			role = entity.Role(comp.Employees[i].Role)
		}
		counts[role]++
	}
	if top == entity.TopologyCollective {
		if counts[entity.RoleCEO]+counts[entity.RoleManager] > 0 {
			return errors.Errorf("company %s: collective companies have worker roles only", comp.Name)
		}
		return nil
	}
	if counts[entity.RoleCEO] != 1 {
		return errors.Errorf("company %s: hierarchical companies need exactly one ceo, got %d", comp.Name, counts[entity.RoleCEO])
	}
	if counts[entity.RoleManager] < 1 {
		return errors.Errorf("company %s: hierarchical companies need at least one manager", comp.Name)
	}
	return nil
}

// DefaultProvider returns the provider marked default, falling back to the
// first configured one.
func (c Config) DefaultProvider() Provider {
	for _, p := range c.Providers {
		if p.Default {
			return p
		}
	}
	return c.Providers[0]
}

func decimalOr(s string, def decimal.Decimal) (decimal.Decimal, error) {
	if s == "" {
		return def, nil
	}
	return decimal.NewFromString(s)
}
