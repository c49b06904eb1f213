package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/ledger"
	"kakeibo/internal/notice"
)

const usage = `usage: kakeibo [-direct] <command> [args]

commands:
  sync                       reload the ledger and refresh the local snapshot
  list <collection> [-month YYYY/MM]
                             print a collection; expenses and incomes add a monthly summary
  due                        print living expenses due and unsettled this month
  ack <id> <amount>          record the payment of a due living expense
  delete <collection> <id>   delete a record
`

var errUsage = errors.New("invalid usage")

// app runs one command against a wired store and notice engine.
type app struct {
	store  *ledger.Store
	engine *notice.Engine
	out    io.Writer
	now    func() time.Time
	loc    *time.Location
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "sync":
		return a.sync(ctx)
	case "list":
		return a.list(ctx, rest)
	case "due":
		return a.due(ctx)
	case "ack":
		return a.ack(ctx, rest)
	case "delete":
		return a.delete(ctx, rest)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (a *app) sync(ctx context.Context) error {
	if err := a.store.Load(ctx, ledger.Force()); err != nil {
		return err
	}
	l := a.store.Ledger()
	fmt.Fprintf(a.out, "synced: %d expenses, %d incomes, %d fixed, %d living\n",
		len(l.Expenses), len(l.Incomes), len(l.FixedExpenses), len(l.LivingExpenses))
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: list needs a collection", errUsage)
	}
	col, err := core.ParseCollection(args[0])
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	month := fs.String("month", "", "YYYY/MM to summarize (default: this month)")
	if err := fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	ym := core.YearMonthOf(a.now().In(a.loc))
	if *month != "" {
		t, err := time.Parse("2006/01", strings.ReplaceAll(*month, "-", "/"))
		if err != nil {
			return fmt.Errorf("%w: month %q", errUsage, *month)
		}
		ym = core.YearMonthOf(t)
	}

	if err := a.store.Load(ctx); err != nil {
		return err
	}
	l := a.store.Ledger()

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	switch col {
	case core.Expenses:
		fmt.Fprintln(tw, "ID\tDATE\tDETAIL\tAMOUNT\tCATEGORY\tPAYMENT")
		for _, e := range l.Expenses {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Detail, core.FormatYen(e.Amount), e.Category, e.Payment)
		}
	case core.Incomes:
		fmt.Fprintln(tw, "ID\tDATE\tDETAIL\tAMOUNT")
		for _, i := range l.Incomes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", i.ID, i.Date, i.Detail, core.FormatYen(i.Amount))
		}
	case core.FixedExpenses:
		writeRecurring(tw, fixedRecurring(l.FixedExpenses))
	case core.LivingExpenses:
		writeRecurring(tw, livingRecurring(l.LivingExpenses))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if col == core.Expenses || col == core.Incomes {
		s := core.Summarize(l, ym)
		fmt.Fprintf(a.out, "\n%s  expenses %s  incomes %s  balance %s\n",
			s.Period, core.FormatYen(s.Expenses), core.FormatYen(s.Incomes), core.FormatYen(s.Balance()))
		for _, c := range s.ByCategory {
			fmt.Fprintf(a.out, "  %s %s\n", c.Name, core.FormatYen(c.Amount))
		}
	}
	return nil
}

func fixedRecurring(items []core.FixedExpense) []core.Recurring {
	out := make([]core.Recurring, 0, len(items))
	for _, f := range items {
		out = append(out, f.Recurring)
	}
	return out
}

func livingRecurring(items []core.LivingExpense) []core.Recurring {
	out := make([]core.Recurring, 0, len(items))
	for _, l := range items {
		out = append(out, l.Recurring)
	}
	return out
}

func writeRecurring(w io.Writer, items []core.Recurring) {
	fmt.Fprintln(w, "ID\tDAY\tDETAIL\tAMOUNT\tCATEGORY\tSETTLED")
	for _, r := range items {
		settled := "-"
		if r.Settled != nil {
			settled = r.Settled.String()
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n", r.ID, r.Day, r.Detail, core.FormatYen(r.Amount), r.Category, settled)
	}
}

func (a *app) due(ctx context.Context) error {
	if err := a.store.Load(ctx); err != nil {
		return err
	}
	items := a.engine.Due()
	if len(items) == 0 {
		fmt.Fprintln(a.out, "nothing due")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDUE\tDETAIL\tLAST AMOUNT\tPAYMENT")
	for _, it := range items {
		r := it.Record
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, core.FormatDate(it.DueDate), r.Detail, core.FormatYen(r.Amount), r.Payment)
	}
	return tw.Flush()
}

func (a *app) ack(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: ack needs <id> <amount>", errUsage)
	}
	id, amount := args[0], args[1]
	if err := a.store.Load(ctx); err != nil {
		return err
	}
	var rec *core.LivingExpense
	for _, le := range a.store.LivingExpenses() {
		if le.ID == id {
			rec = &le
			break
		}
	}
	if rec == nil {
		return fmt.Errorf("living expense %q: %w", id, core.ErrNotFound)
	}

	exp, err := a.engine.Acknowledge(ctx, *rec, amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "recorded %s %s on %s (expense %s)\n", exp.Detail, core.FormatYen(exp.Amount), exp.Date, exp.ID)

	// Pick up the new expense so the snapshot includes it.
	return a.store.Load(ctx, ledger.Force())
}

func (a *app) delete(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: delete needs <collection> <id>", errUsage)
	}
	col, err := core.ParseCollection(args[0])
	if err != nil {
		return err
	}
	if err := a.store.Load(ctx); err != nil {
		return err
	}
	if err := a.store.DeleteRecord(ctx, col, args[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %s %s\n", col, args[1])
	return nil
}
