package main

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFlags(t *testing.T, args ...string) *flag.FlagSet {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("config", "", "")
	fs.String("postgres-dsn", "", "")
	fs.String("format", "", "")
	fs.String("log-level", "", "")
	fs.Int("parallelism", 0, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadConfig(t *testing.T) {
	t.Run("file values and defaults", func(t *testing.T) {
		settings, scenario, err := loadConfig(parseFlags(t, "--config", "testdata/scenario.yaml"))
		require.NoError(t, err)

		assert.Equal(t, "text", settings.Format)
		assert.Equal(t, "warn", settings.LogLevel)
		assert.Equal(t, 2, settings.Parallelism)
		assert.Empty(t, settings.PostgresDSN)

		assert.Equal(t, "treasury", scenario.Owner)
		assert.Equal(t, "10_000_000", scenario.Supply)
		assert.Equal(t, []string{"alice", "bob"}, scenario.Beneficiaries)
		require.Len(t, scenario.Steps, 10)
		assert.Equal(t, Step{AtDay: 0, Action: ActionGrant, Beneficiary: "alice", Amount: "1000000"}, scenario.Steps[0])
		require.NotNil(t, scenario.Steps[6].Grant)
		assert.Equal(t, uint64(0), *scenario.Steps[6].Grant)
		assert.Nil(t, scenario.Steps[5].Grant)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("VESTSIM_FORMAT", "yaml")
		t.Setenv("VESTSIM_POSTGRES_DSN", "postgres://localhost/vesting")
		settings, _, err := loadConfig(parseFlags(t, "--config", "testdata/scenario.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "yaml", settings.Format)
		assert.Equal(t, "postgres://localhost/vesting", settings.PostgresDSN)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("VESTSIM_FORMAT", "yaml")
		settings, _, err := loadConfig(parseFlags(t, "--config", "testdata/scenario.yaml", "--format", "text", "--parallelism", "5"))
		require.NoError(t, err)
		assert.Equal(t, "text", settings.Format)
		assert.Equal(t, 5, settings.Parallelism)
	})

	t.Run("config from environment", func(t *testing.T) {
		t.Setenv("VESTSIM_CONFIG", "testdata/scenario.yaml")
		_, scenario, err := loadConfig(parseFlags(t))
		require.NoError(t, err)
		assert.Equal(t, "treasury", scenario.Owner)
	})

	t.Run("missing config", func(t *testing.T) {
		_, _, err := loadConfig(parseFlags(t))
		assert.Error(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, _, err := loadConfig(parseFlags(t, "--config", "testdata/scenario.yaml", "--format", "json"))
		assert.Error(t, err)
	})
}

func TestScenarioValidate(t *testing.T) {
	valid := func() Scenario {
		return Scenario{
			Owner:         "treasury",
			Supply:        "1000",
			Beneficiaries: []string{"alice"},
			Steps: []Step{
				{AtDay: 0, Action: ActionGrant, Beneficiary: "alice", Amount: "100"},
				{AtDay: 3, Action: ActionClaim, Beneficiary: "alice"},
			},
		}
	}
	require.NoError(t, func() error { s := valid(); return s.Validate() }())

	cases := map[string]func(s *Scenario){
		"missing owner":         func(s *Scenario) { s.Owner = "" },
		"bad supply":            func(s *Scenario) { s.Supply = "lots" },
		"negative supply":       func(s *Scenario) { s.Supply = "-1" },
		"owner as beneficiary":  func(s *Scenario) { s.Beneficiaries = append(s.Beneficiaries, "treasury") },
		"duplicate beneficiary": func(s *Scenario) { s.Beneficiaries = append(s.Beneficiaries, "alice") },
		"time goes backwards":   func(s *Scenario) { s.Steps[1].AtDay = -1 },
		"unknown action":        func(s *Scenario) { s.Steps[1].Action = "burn" },
		"unknown beneficiary":   func(s *Scenario) { s.Steps[1].Beneficiary = "mallory" },
		"zero grant":            func(s *Scenario) { s.Steps[0].Amount = "0" },
		"missing grant amount":  func(s *Scenario) { s.Steps[0].Amount = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := valid()
			mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestScenarioNames(t *testing.T) {
	s := Scenario{Owner: "treasury", Beneficiaries: []string{"carol", "alice", "bob"}}
	assert.Equal(t, []string{"treasury", "alice", "bob", "carol"}, s.Names())
}
