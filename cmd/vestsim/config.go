package main

import (
	"flag"
	"fmt"
	"sort"
	"strings"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/spf13/viper"

	"github.com/tokenvest/vesting-actors/support/report"
)

// Settings control a run. They are read from the scenario file, overridden by
// VESTSIM_* environment variables, then by command line flags.
type Settings struct {
	ConfigFile  string
	PostgresDSN string
	Format      string
	LogLevel    string
	Parallelism int
}

type Action string

const (
	ActionGrant   Action = "grant"
	ActionClaim   Action = "claim"
	ActionAdvance Action = "advance"
	ActionQuery   Action = "query"
)

type Step struct {
	AtDay       int64  `mapstructure:"at_day"`
	Action      Action `mapstructure:"action"`
	Beneficiary string `mapstructure:"beneficiary"`
	Amount      string `mapstructure:"amount"`
	// Claims a single grant instead of all grants when set.
	Grant *uint64 `mapstructure:"grant"`
}

type Scenario struct {
	Owner         string   `mapstructure:"owner"`
	Supply        string   `mapstructure:"supply"`
	Beneficiaries []string `mapstructure:"beneficiaries"`
	Steps         []Step   `mapstructure:"steps"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VESTSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("format", "text")
	v.SetDefault("log_level", "info")
	v.SetDefault("parallelism", report.DefaultParallelism)
	v.SetDefault("postgres_dsn", "")
	return v
}

// loadConfig reads settings and the scenario. Only flags set explicitly override the file and environment.
func loadConfig(fs *flag.FlagSet) (*Settings, *Scenario, error) {
	v := newViper()
	fs.Visit(func(f *flag.Flag) {
		v.Set(strings.ReplaceAll(f.Name, "-", "_"), f.Value.String())
	})

	path := v.GetString("config")
	if path == "" {
		return nil, nil, fmt.Errorf("a scenario file is required (--config or VESTSIM_CONFIG)")
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}

	settings := &Settings{
		ConfigFile:  path,
		PostgresDSN: v.GetString("postgres_dsn"),
		Format:      v.GetString("format"),
		LogLevel:    v.GetString("log_level"),
		Parallelism: v.GetInt("parallelism"),
	}
	if settings.Format != "text" && settings.Format != "yaml" {
		return nil, nil, fmt.Errorf("unknown output format %q", settings.Format)
	}

	var scenario Scenario
	if err := v.Unmarshal(&scenario); err != nil {
		return nil, nil, fmt.Errorf("failed to decode scenario %s: %w", path, err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return settings, &scenario, nil
}

// Validate checks names and amounts, and that steps never move the clock backwards.
func (s *Scenario) Validate() error {
	if s.Owner == "" {
		return fmt.Errorf("owner is required")
	}
	supply, err := parseAmount(s.Supply)
	if err != nil {
		return fmt.Errorf("supply: %w", err)
	}
	if supply.LessThan(big.Zero()) {
		return fmt.Errorf("supply %v is negative", supply)
	}

	known := map[string]bool{}
	for _, b := range s.Beneficiaries {
		if b == "" {
			return fmt.Errorf("empty beneficiary name")
		}
		if b == s.Owner || known[b] {
			return fmt.Errorf("duplicate account name %q", b)
		}
		known[b] = true
	}

	lastDay := int64(0)
	for i, step := range s.Steps {
		if step.AtDay < lastDay {
			return fmt.Errorf("step %d: day %d is before day %d", i, step.AtDay, lastDay)
		}
		lastDay = step.AtDay

		switch step.Action {
		case ActionGrant:
			amount, err := parseAmount(step.Amount)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			if amount.LessThanEqual(big.Zero()) {
				return fmt.Errorf("step %d: grant amount must be positive", i)
			}
			fallthrough
		case ActionClaim, ActionQuery:
			if !known[step.Beneficiary] {
				return fmt.Errorf("step %d: unknown beneficiary %q", i, step.Beneficiary)
			}
		case ActionAdvance:
		default:
			return fmt.Errorf("step %d: unknown action %q", i, step.Action)
		}
	}
	return nil
}

// Names returns the owner followed by the beneficiaries in sorted order.
func (s *Scenario) Names() []string {
	names := append([]string{}, s.Beneficiaries...)
	sort.Strings(names)
	return append([]string{s.Owner}, names...)
}

func parseAmount(s string) (abi.TokenAmount, error) {
	if s == "" {
		return big.Zero(), fmt.Errorf("amount is required")
	}
	amount, err := big.FromString(strings.ReplaceAll(s, "_", ""))
	if err != nil {
		return big.Zero(), fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return amount, nil
}

// Key address standing in for a named scenario account.
func keyAddress(name string) (addr.Address, error) {
	return addr.NewSecp256k1Address([]byte("vestsim/" + name))
}
