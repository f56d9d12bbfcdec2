package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"homebudget/internal/core"
	"homebudget/internal/forecast"
	"homebudget/internal/services"
	"homebudget/internal/voice"
)

type app struct {
	session  *services.Session
	out      io.Writer
	errOut   io.Writer
	json     bool
	now      func() time.Time
	keywords voice.Keywords
}

type command struct {
	name string
	help string
	run  func(a *app, ctx context.Context, args []string) error
}

var commands = []command{
	{"status", "show the active budget", (*app).status},
	{"budgets", "list budgets", (*app).budgets},
	{"create", "create a budget: create [-activate=false] NAME", (*app).create},
	{"switch", "switch the active budget: switch ID", (*app).switchTo},
	{"delete", "delete the active budget", (*app).deleteActive},
	{"add", "add a transaction: add -amount 12.50 -category ID", (*app).add},
	{"voice", "add a spoken transaction: voice [-preview] TEXT", (*app).voice},
	{"archive", "archive the running month and reset the budget", (*app).archive},
	{"archives", "list archived months", (*app).archives},
	{"history", "show spend per archived month", (*app).history},
	{"forecast", "project the next month: forecast [-category ID]", (*app).forecast},
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

func (a *app) emit(v any, text func(w io.Writer)) error {
	if a.json {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

func (a *app) status(_ context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: status takes no arguments", errUsage)
	}
	view := a.session.View()
	b, err := a.session.Current()
	if err != nil {
		return err
	}
	s := core.Summarize(b)
	return a.emit(view, func(w io.Writer) {
		fmt.Fprintf(w, "Budget:\t%s (%s)\n", b.Name, view.ActiveBudgetID)
		fmt.Fprintf(w, "Income:\t%s\n", s.Income.StringFixed(2))
		fmt.Fprintf(w, "Spent:\t%s (%s%%)\n", s.TotalSpent.StringFixed(2), s.SpentPercentage.StringFixed(2))
		fmt.Fprintf(w, "Remaining:\t%s\n\n", s.Remaining.StringFixed(2))
		fmt.Fprintln(w, "ID\tCATEGORY\tTYPE\tALLOCATED\tSPENT")
		for _, c := range b.Categories {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, c.Allocated.StringFixed(2), c.Spent.StringFixed(2))
		}
	})
}

func (a *app) budgets(_ context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: budgets takes no arguments", errUsage)
	}
	active := a.session.ActiveBudgetID()
	list := a.session.Budgets()
	return a.emit(list, func(w io.Writer) {
		for _, b := range list {
			mark := " "
			if b.ID == active {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", mark, b.ID, b.Name)
		}
	})
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := a.flags("create")
	activate := fs.Bool("activate", true, "make the new budget active")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if name == "" {
		return fmt.Errorf("%w: create needs a name", errUsage)
	}
	id, err := a.session.CreateBudget(ctx, name, *activate)
	if err != nil {
		return err
	}
	return a.emit(map[string]string{"id": id, "name": name}, func(w io.Writer) {
		fmt.Fprintf(w, "Created %s (%s)\n", name, id)
	})
}

func (a *app) switchTo(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: switch needs a budget id", errUsage)
	}
	return a.session.SwitchActiveBudget(ctx, args[0])
}

func (a *app) deleteActive(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: delete takes no arguments", errUsage)
	}
	return a.session.DeleteActiveBudget(ctx)
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := a.flags("add")
	amount := fs.String("amount", "", "amount spent, e.g. 12.50 or 12,50")
	category := fs.String("category", "", "category id")
	date := fs.String("date", core.Today(a.now()), "date as YYYY-MM-DD")
	desc := fs.String("desc", "", "description")
	payment := fs.String("payment", "", "payment method")
	sub := fs.String("sub", "", "subcategory label")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected argument %q", errUsage, fs.Arg(0))
	}
	amt, err := core.ParseAmount(*amount)
	if err != nil {
		return err
	}
	tx, err := a.session.AddTransaction(ctx, core.TransactionInput{
		Amount:        amt,
		CategoryID:    *category,
		Subcategory:   *sub,
		PaymentMethod: *payment,
		Description:   *desc,
		Date:          *date,
	})
	if err != nil {
		return err
	}
	return a.emit(tx, func(w io.Writer) {
		fmt.Fprintf(w, "Added %s\t%s\t%s\n", tx.ID, tx.Amount.StringFixed(2), tx.CategoryID)
	})
}

func (a *app) voice(ctx context.Context, args []string) error {
	fs := a.flags("voice")
	preview := fs.Bool("preview", false, "print the parsed transaction without saving it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	transcript := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(transcript) == "" {
		return fmt.Errorf("%w: voice needs a transcript", errUsage)
	}
	b, err := a.session.Current()
	if err != nil {
		return err
	}
	in, err := voice.Parse(transcript, b, a.keywords, a.now())
	if err != nil {
		return err
	}
	if *preview {
		return a.emit(in, func(w io.Writer) {
			fmt.Fprintf(w, "Amount:\t%s\nCategory:\t%s\nDate:\t%s\nDescription:\t%s\n",
				in.Amount.StringFixed(2), in.CategoryID, in.Date, in.Description)
		})
	}
	tx, err := a.session.AddTransaction(ctx, in)
	if err != nil {
		return err
	}
	return a.emit(tx, func(w io.Writer) {
		fmt.Fprintf(w, "Added %s\t%s\t%s\n", tx.ID, tx.Amount.StringFixed(2), tx.CategoryID)
	})
}

func (a *app) archive(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: archive takes no arguments", errUsage)
	}
	period, err := a.session.ArchiveMonth(ctx)
	if err != nil {
		return err
	}
	return a.emit(map[string]string{"period": period}, func(w io.Writer) {
		fmt.Fprintf(w, "Archived %s\n", period)
	})
}

func (a *app) archives(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: archives takes no arguments", errUsage)
	}
	periods, err := a.session.ArchivePeriods(ctx)
	if err != nil {
		return err
	}
	return a.emit(periods, func(w io.Writer) {
		for _, p := range periods {
			fmt.Fprintln(w, p)
		}
	})
}

func (a *app) history(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: history takes no arguments", errUsage)
	}
	archives, err := a.session.Archives(ctx)
	if err != nil {
		return err
	}
	points := forecast.History(archives)
	return a.emit(points, func(w io.Writer) {
		fmt.Fprintln(w, "PERIOD\tINCOME\tSPENT\tREMAINING")
		for _, p := range points {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Period, p.Income.StringFixed(2), p.TotalSpent.StringFixed(2), p.Remaining.StringFixed(2))
		}
	})
}

func (a *app) forecast(ctx context.Context, args []string) error {
	fs := a.flags("forecast")
	category := fs.String("category", "", "forecast a single category")
	if err := fs.Parse(args); err != nil {
		return err
	}
	archives, err := a.session.Archives(ctx)
	if err != nil {
		return err
	}
	if *category != "" {
		f, err := forecast.CategoryForecast(archives, *category)
		if err != nil {
			return err
		}
		return a.emit(f, func(w io.Writer) {
			fmt.Fprintf(w, "%s\taverage %s\tprojected %s\t(%d months)\n", f.CategoryID, f.Average.StringFixed(2), f.Projected.StringFixed(2), f.Samples)
		})
	}

	b, err := a.session.Current()
	if err != nil {
		return err
	}
	cats := forecast.Forecasts(archives, b)
	end := forecast.ProjectPeriodEnd(b, a.now())
	out := struct {
		Categories []forecast.Category `json:"categories"`
		PeriodEnd  forecast.PeriodEnd  `json:"periodEnd"`
	}{cats, end}
	return a.emit(out, func(w io.Writer) {
		fmt.Fprintf(w, "%s projected spend:\t%s of %s\n\n", end.Period, end.Projected.StringFixed(2), end.Income.StringFixed(2))
		fmt.Fprintln(w, "CATEGORY\tAVERAGE\tPROJECTED\tMONTHS")
		for _, c := range cats {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", c.Name, c.Average.StringFixed(2), c.Projected.StringFixed(2), c.Samples)
		}
	})
}
