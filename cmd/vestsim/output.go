package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

type stepView struct {
	Day         int64  `yaml:"day"`
	Epoch       int64  `yaml:"epoch"`
	Action      string `yaml:"action"`
	Beneficiary string `yaml:"beneficiary,omitempty"`
	Amount      string `yaml:"amount"`
	ExitCode    int64  `yaml:"exit_code"`
	Message     string `yaml:"message,omitempty"`
	Detail      string `yaml:"detail"`
}

type grantView struct {
	Index         uint64 `yaml:"index"`
	StartEpoch    int64  `yaml:"start_epoch"`
	FullyVestedAt int64  `yaml:"fully_vested_at"`
	Total         string `yaml:"total"`
	Unlocked      string `yaml:"unlocked"`
	Collected     string `yaml:"collected"`
	Claimable     string `yaml:"claimable"`
	Settled       bool   `yaml:"settled"`
}

type beneficiaryView struct {
	Name      string      `yaml:"name"`
	Address   string      `yaml:"address"`
	Total     string      `yaml:"total"`
	Unlocked  string      `yaml:"unlocked"`
	Collected string      `yaml:"collected"`
	Claimable string      `yaml:"claimable"`
	Grants    []grantView `yaml:"grants"`
}

type indexRunView struct {
	ID         int64  `yaml:"id"`
	StateRoot  string `yaml:"state_root"`
	GrantCount uint64 `yaml:"grant_count"`
}

type resultView struct {
	Epoch          int64             `yaml:"epoch"`
	GrantCount     uint64            `yaml:"grant_count"`
	TotalGranted   string            `yaml:"total_granted"`
	TotalCollected string            `yaml:"total_collected"`
	Outstanding    string            `yaml:"outstanding"`
	Custody        string            `yaml:"custody"`
	Balances       map[string]string `yaml:"balances"`
	Steps          []stepView        `yaml:"steps"`
	Beneficiaries  []beneficiaryView `yaml:"beneficiaries"`
	IndexRun       *indexRunView     `yaml:"index_run,omitempty"`
}

func newResultView(r *Result) *resultView {
	rep := r.Report
	view := &resultView{
		Epoch:          int64(r.Epoch),
		GrantCount:     rep.GrantCount,
		TotalGranted:   rep.TotalGranted.String(),
		TotalCollected: rep.TotalCollected.String(),
		Outstanding:    rep.Outstanding.String(),
		Custody:        r.Custody.String(),
		Balances:       map[string]string{},
	}
	for name, b := range r.Balances {
		view.Balances[name] = b.String()
	}
	for _, s := range r.Steps {
		view.Steps = append(view.Steps, stepView{
			Day:         s.Day,
			Epoch:       int64(s.Epoch),
			Action:      string(s.Action),
			Beneficiary: s.Beneficiary,
			Amount:      s.Amount.String(),
			ExitCode:    int64(s.Code),
			Message:     s.MessageID,
			Detail:      s.Detail,
		})
	}
	for _, b := range rep.Beneficiaries {
		bv := beneficiaryView{
			Name:      nameOf(r.Names, b.Address),
			Address:   b.Address.String(),
			Total:     b.Total.String(),
			Unlocked:  b.Unlocked.String(),
			Collected: b.Collected.String(),
			Claimable: b.Claimable.String(),
		}
		for _, g := range b.Grants {
			bv.Grants = append(bv.Grants, grantView{
				Index:         g.Index,
				StartEpoch:    int64(g.StartEpoch),
				FullyVestedAt: int64(g.FullyVestedAt),
				Total:         g.Total.String(),
				Unlocked:      g.Unlocked.String(),
				Collected:     g.Collected.String(),
				Claimable:     g.Claimable.String(),
				Settled:       g.Settled,
			})
		}
		view.Beneficiaries = append(view.Beneficiaries, bv)
	}
	if r.IndexRun != nil {
		view.IndexRun = &indexRunView{ID: r.IndexRun.ID, StateRoot: r.IndexRun.StateRoot, GrantCount: r.IndexRun.GrantCount}
	}
	return view
}

func writeResult(w io.Writer, r *Result, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newResultView(r)); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		return enc.Close()
	case "text":
		return writeText(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, r *Result) error {
	p := message.NewPrinter(language.English) // For readable large numbers
	rep := r.Report

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	p.Fprintf(tw, "DAY\tEPOCH\tACTION\tBENEFICIARY\tAMOUNT\tEXIT\tDETAIL\n")
	for _, s := range r.Steps {
		p.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%d\t%s\n", s.Day, s.Epoch, s.Action, s.Beneficiary,
			formatAmount(p, s.Amount), int64(s.Code), s.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	p.Fprintf(w, "\nepoch %d: %d grants, granted %s, collected %s, outstanding %s, custody %s\n",
		r.Epoch, rep.GrantCount, formatAmount(p, rep.TotalGranted), formatAmount(p, rep.TotalCollected),
		formatAmount(p, rep.Outstanding), formatAmount(p, r.Custody))

	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	p.Fprintf(tw, "\nBENEFICIARY\tGRANT\tTOTAL\tUNLOCKED\tCOLLECTED\tCLAIMABLE\tVESTED AT\n")
	for _, b := range rep.Beneficiaries {
		name := nameOf(r.Names, b.Address)
		for _, g := range b.Grants {
			p.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%d\n", name, g.Index, formatAmount(p, g.Total),
				formatAmount(p, g.Unlocked), formatAmount(p, g.Collected), formatAmount(p, g.Claimable), g.FullyVestedAt)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	names := make([]string, 0, len(r.Balances))
	for name := range r.Balances {
		names = append(names, name)
	}
	sort.Strings(names)
	p.Fprintf(w, "\nbalances:\n")
	for _, name := range names {
		p.Fprintf(w, "  %s: %s\n", name, formatAmount(p, r.Balances[name]))
	}

	if r.IndexRun != nil {
		p.Fprintf(w, "\nindexed %d grants as run %d (state %s)\n", r.IndexRun.GrantCount, r.IndexRun.ID, r.IndexRun.StateRoot)
	}
	return nil
}

// Groups digits of amounts that fit in an int64; larger amounts print unformatted.
func formatAmount(p *message.Printer, amount abi.TokenAmount) string {
	if amount.Int != nil && amount.Int.IsInt64() {
		return p.Sprintf("%d", amount.Int64())
	}
	return amount.String()
}

func nameOf(names map[addr.Address]string, a addr.Address) string {
	if name, ok := names[a]; ok {
		return name
	}
	return a.String()
}
