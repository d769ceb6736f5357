package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store"
)

// register the subcommands.
func register(c *subcommands.Commander) {
	c.Register(&allocateCmd{}, "ledger")
	c.Register(&allocateUserCmd{}, "ledger")
	c.Register(&balancesCmd{}, "ledger")

	c.Register(&overtimeCmd{}, "overtime")
	c.Register(&capacityCmd{}, "capacity")

	c.Register(&seedCmd{}, "dev")
}

var (
	dbDriver = flag.String("driver", "", "Store driver, sqlite or postgres (overrides DB_DRIVER)")
	dbPath   = flag.String("db", "", "SQLite database path (overrides DB_PATH)")

	stdout io.Writer = os.Stdout
)

// env is everything a command needs, opened from config and flags.
type env struct {
	store      ledger.TxStore
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	out        io.Writer

	close func()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if *dbDriver != "" {
		cfg.DBDriver = *dbDriver
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger()

	s, closeStore, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	notifyCtx, stopNotify := context.WithCancel(context.Background())
	d := notify.NewDispatcher(notify.Options{
		Store:       s,
		Mailer:      notify.NewMailer(cfg.SMTP()),
		From:        cfg.EmailFrom,
		QueueSize:   cfg.NotifyQueueSize,
		MaxAttempts: cfg.NotifyMaxAttempts,
		Backoff:     cfg.NotifyBackoff,
		Logger:      logger,
	})
	d.Start(notifyCtx)

	return &env{
		store:      s,
		dispatcher: d,
		logger:     logger,
		out:        stdout,
		close: func() {
			// Cancelling drains the queue before the store goes away.
			stopNotify()
			d.Wait()
			closeStore()
		},
	}, nil
}

func (e *env) print(v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// run opens the environment, calls fn and maps its error to an exit status.
func run(ctx context.Context, fn func(*env) error) subcommands.ExitStatus {
	e, err := openEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.close()

	if err := fn(e); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if ledger.IsClientError(err) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func usageError(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitUsageError
}

// =============================================================================
// LEDGER
// =============================================================================

type allocateCmd struct {
	tenant string
	year   int
	dryRun bool
}

func (*allocateCmd) Name() string     { return "allocate" }
func (*allocateCmd) Synopsis() string { return "run the annual allocation for a tenant" }
func (*allocateCmd) Usage() string {
	return `leavectl allocate -tenant <id> [-year <yyyy>] [-dry-run]

  Seeds every (user, leave type) ledger row of the tenant for the year,
  carrying forward capped prior-year leftovers. With -dry-run, only
  reports what would be created or updated.
`
}

func (c *allocateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "Tenant id")
	f.IntVar(&c.year, "year", time.Now().UTC().Year(), "Leave year")
	f.BoolVar(&c.dryRun, "dry-run", false, "Classify rows without writing")
}

func (c *allocateCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.tenant == "" {
		return usageError("-tenant is required")
	}
	return run(ctx, func(e *env) error {
		stats, err := leave.NewAllocator(e.store, e.logger).RunAnnualAllocation(ctx, c.tenant, c.year, c.dryRun)
		if err != nil {
			return err
		}
		return e.print(stats)
	})
}

type allocateUserCmd struct {
	tenant    string
	user      string
	leaveType string
	days      string
	year      int
}

func (*allocateUserCmd) Name() string     { return "allocate-user" }
func (*allocateUserCmd) Synopsis() string { return "set the allocated days of one ledger row" }
func (*allocateUserCmd) Usage() string {
	return `leavectl allocate-user -tenant <id> -user <id> -type <leave type id> -days <n> [-year <yyyy>]

  Sets allocated on one ledger row, keeping used and pending.
`
}

func (c *allocateUserCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "Tenant id")
	f.StringVar(&c.user, "user", "", "User id")
	f.StringVar(&c.leaveType, "type", "", "Leave type id")
	f.StringVar(&c.days, "days", "", "Allocated days, e.g. 12.5")
	f.IntVar(&c.year, "year", time.Now().UTC().Year(), "Leave year")
}

func (c *allocateUserCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	days, err := decimal.NewFromString(c.days)
	if err != nil {
		return usageError("invalid -days %q: %v", c.days, err)
	}
	return run(ctx, func(e *env) error {
		b, err := leave.NewAllocator(e.store, e.logger).AllocateIndividualLeave(ctx, leave.IndividualAllocation{
			TenantID:    c.tenant,
			UserID:      c.user,
			LeaveTypeID: c.leaveType,
			Days:        days,
			Year:        c.year,
		})
		if err != nil {
			return err
		}
		return e.print(b)
	})
}

type balancesCmd struct {
	tenant string
	user   string
	year   int
}

func (*balancesCmd) Name() string     { return "balances" }
func (*balancesCmd) Synopsis() string { return "list a user's ledger rows" }
func (*balancesCmd) Usage() string {
	return `leavectl balances -tenant <id> -user <id> [-year <yyyy>]

  Lists ledger rows; without -year, every year.
`
}

func (c *balancesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "Tenant id")
	f.StringVar(&c.user, "user", "", "User id")
	f.IntVar(&c.year, "year", 0, "Leave year, 0 for all")
}

func (c *balancesCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.tenant == "" || c.user == "" {
		return usageError("-tenant and -user are required")
	}
	return run(ctx, func(e *env) error {
		rows, err := e.store.ListBalances(ctx, c.tenant, c.user, c.year)
		if err != nil {
			return err
		}
		return e.print(rows)
	})
}

// =============================================================================
// OVERTIME AND CAPACITY
// =============================================================================

type overtimeCmd struct {
	tenant string
	email  string
	date   string
}

func (*overtimeCmd) Name() string     { return "overtime" }
func (*overtimeCmd) Synopsis() string { return "credit comp-off for one week of overtime" }
func (*overtimeCmd) Usage() string {
	return `leavectl overtime -tenant <id> -email <user email> [-d <date>]

  Credits comp-off for the Monday-start week containing the date (defaults
  to today). A week is credited at most once.
`
}

func (c *overtimeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "Tenant id")
	f.StringVar(&c.email, "email", "", "User email")
	f.StringVar(&c.date, "d", "", "Any date in the week, YYYY-MM-DD (defaults to today)")
}

func (c *overtimeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	date, err := parseDateOrToday(c.date)
	if err != nil {
		return usageError("invalid -d %q: %v", c.date, err)
	}
	return run(ctx, func(e *env) error {
		res, err := leave.NewOvertimeEngine(e.store, e.dispatcher, e.logger).ProcessOvertimeForCompOff(ctx, c.tenant, c.email, date)
		if err != nil {
			return err
		}
		return e.print(api.OvertimeResponse{Credited: res.Credited, Days: res.Days, WeekKey: res.WeekKey})
	})
}

type capacityCmd struct {
	tenant string
	email  string
	week   string
}

func (*capacityCmd) Name() string     { return "capacity" }
func (*capacityCmd) Synopsis() string { return "show a user's weekly capacity after approved leave" }
func (*capacityCmd) Usage() string {
	return `leavectl capacity -tenant <id> -email <user email> [-week <date>]

  Shows the 40h weekly capacity reduced by approved leave, for the week
  starting at -week (defaults to this week's Monday).
`
}

func (c *capacityCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tenant, "tenant", "", "Tenant id")
	f.StringVar(&c.email, "email", "", "User email")
	f.StringVar(&c.week, "week", "", "Week start, YYYY-MM-DD")
}

func (c *capacityCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	weekStart, err := parseDateOrToday(c.week)
	if err != nil {
		return usageError("invalid -week %q: %v", c.week, err)
	}
	if c.week == "" {
		weekStart = ledger.StartOfWeek(weekStart)
	}
	return run(ctx, func(e *env) error {
		res, err := leave.NewCapacityCalculator(e.store, e.store).Capacity(ctx, c.tenant, c.email, weekStart)
		if err != nil {
			return err
		}
		return e.print(res)
	})
}

// =============================================================================
// DEV
// =============================================================================

type seedCmd struct {
	scenario string
	tenant   string
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "load a demo scenario into a tenant" }
func (*seedCmd) Usage() string {
	return `leavectl seed -scenario <id> -tenant <id>

  Scenarios: new-employee, year-end-rollover, overtime-week, pending-requests.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.scenario, "scenario", "new-employee", "Scenario id")
	f.StringVar(&c.tenant, "tenant", "demo", "Tenant id")
}

func (c *seedCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(e *env) error {
		h := api.NewHandler(e.store, e.dispatcher, e.logger)
		if err := h.SeedScenario(ctx, c.scenario, c.tenant); err != nil {
			return err
		}
		return e.print(map[string]string{"status": "loaded", "scenario": c.scenario, "tenant_id": c.tenant})
	})
}

func parseDateOrToday(s string) (time.Time, error) {
	if s == "" {
		return ledger.Day(time.Now()), nil
	}
	return ledger.ParseDate(s)
}
