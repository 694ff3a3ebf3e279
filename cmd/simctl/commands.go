package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/scenario-sim/internal/autoplay"
	"github.com/hochfrequenz/scenario-sim/internal/catalog"
	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/fixtures"
	"github.com/hochfrequenz/scenario-sim/internal/timeline"
	"github.com/hochfrequenz/scenario-sim/tui"
	"github.com/hochfrequenz/scenario-sim/web/api"
)

var (
	branchFrom string

	eventType     string
	eventPending  bool
	eventExecuted bool
	eventFrom     string
	eventTo       string

	scheduleDate        string
	scheduleIn          int
	scheduleName        string
	scheduleType        string
	scheduleDescription string

	templatesType string
	packetRegen   bool
	seedDays      int
	servePort     int
)

func init() {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the simulated clock and branches",
		RunE:  runStatus,
	}

	advanceCmd := &cobra.Command{
		Use:   "advance [days]",
		Short: "Advance the clock by a number of days (default 1)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAdvance,
	}

	jumpCmd := &cobra.Command{
		Use:   "jump DATE",
		Short: "Set the clock to a date, forwards or backwards",
		Args:  cobra.ExactArgs(1),
		RunE:  runJump,
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback DATE",
		Short: "Move the clock back and apply the rollback policy",
		Args:  cobra.ExactArgs(1),
		RunE:  runRollback,
	}

	branchCmd := &cobra.Command{
		Use:   "branch",
		Short: "Manage timeline branches",
	}
	branchListCmd := &cobra.Command{
		Use:   "list",
		Short: "List timeline branches",
		RunE:  runBranchList,
	}
	branchCreateCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a timeline branch",
		Args:  cobra.ExactArgs(1),
		RunE:  runBranchCreate,
	}
	branchCreateCmd.Flags().StringVar(&branchFrom, "from", "", "branch point (default: current date)")
	branchSwitchCmd := &cobra.Command{
		Use:   "switch ID",
		Short: "Make a branch active and move the clock to its date",
		Args:  cobra.ExactArgs(1),
		RunE:  runBranchSwitch,
	}
	branchCmd.AddCommand(branchListCmd, branchCreateCmd, branchSwitchCmd)

	eventCmd := &cobra.Command{
		Use:   "event",
		Short: "Schedule and execute narrative events",
	}
	eventListCmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled events",
		RunE:  runEventList,
	}
	eventListCmd.Flags().StringVar(&eventType, "type", "", "filter by type (small_problem, bait, custom)")
	eventListCmd.Flags().BoolVar(&eventPending, "pending", false, "only events that have not fired")
	eventListCmd.Flags().BoolVar(&eventExecuted, "executed", false, "only events that have fired")
	eventListCmd.Flags().StringVar(&eventFrom, "from", "", "scheduled on or after DATE")
	eventListCmd.Flags().StringVar(&eventTo, "to", "", "scheduled on or before DATE")
	eventScheduleCmd := &cobra.Command{
		Use:   "schedule [TEMPLATE]",
		Short: "Schedule a catalog template or an ad hoc event",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEventSchedule,
	}
	eventScheduleCmd.Flags().StringVar(&scheduleDate, "date", "", "trigger date")
	eventScheduleCmd.Flags().IntVar(&scheduleIn, "in", -1, "trigger this many days after the current date")
	eventScheduleCmd.Flags().StringVar(&scheduleName, "name", "", "name of an ad hoc event")
	eventScheduleCmd.Flags().StringVar(&scheduleType, "type", string(domain.EventCustom), "type of an ad hoc event")
	eventScheduleCmd.Flags().StringVar(&scheduleDescription, "description", "", "description of an ad hoc event")
	eventRescheduleCmd := &cobra.Command{
		Use:   "reschedule ID DATE",
		Short: "Move a pending event to a new date",
		Args:  cobra.ExactArgs(2),
		RunE:  runEventReschedule,
	}
	eventExecuteCmd := &cobra.Command{
		Use:   "execute ID",
		Short: "Fire an event now regardless of its date",
		Args:  cobra.ExactArgs(1),
		RunE:  runEventExecute,
	}
	eventRunDueCmd := &cobra.Command{
		Use:   "run-due",
		Short: "Fire every event due at the current date",
		RunE:  runEventRunDue,
	}
	eventCmd.AddCommand(eventListCmd, eventScheduleCmd, eventRescheduleCmd, eventExecuteCmd, eventRunDueCmd)

	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "List event templates from the catalog",
		RunE:  runTemplates,
	}
	templatesCmd.Flags().StringVar(&templatesType, "type", "", "filter by type")

	packetCmd := &cobra.Command{
		Use:   "packet DATE",
		Short: "Print the day packet for a date as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runPacket,
	}
	packetCmd.Flags().BoolVar(&packetRegen, "regenerate", false, "rebuild the packet even if one is stored")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the finance series starting at the simulation start date",
		RunE:  runSeed,
	}
	seedCmd.Flags().IntVar(&seedDays, "days", 0, "number of days (default from config)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server with live streams",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")

	tuiCmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch the interactive dashboard",
		RunE:  runTUI,
	}

	rootCmd.AddCommand(statusCmd, advanceCmd, jumpCmd, rollbackCmd, branchCmd, eventCmd,
		templatesCmd, packetCmd, seedCmd, serveCmd, tuiCmd)
}

func parseDateArg(s string) (domain.Date, error) {
	d, err := domain.ParseDate(s)
	if err != nil {
		return d, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

func printAdvance(adv timeline.Advance) {
	if !adv.Applied {
		fmt.Printf("Clock unchanged at %s\n", adv.From)
		return
	}
	fmt.Printf("Clock: %s -> %s\n", adv.From, adv.To)
	printReport(adv.Report)
}

func printReport(r *domain.ExecutionReport) {
	if r == nil {
		return
	}
	for _, id := range r.Executed {
		fmt.Printf("  fired %s\n", id)
	}
	for _, f := range r.Failed {
		fmt.Printf("  failed %s: %s\n", f.EventID, f.Message)
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	st := a.engine.State()
	fmt.Printf("Current date: %s\n", st.CurrentDate)
	fmt.Printf("Start date:   %s\n", st.StartDate)
	if st.ActiveBranchID == "" {
		fmt.Println("Branch:       none (clock changes are not persisted, run `simctl branch create`)")
	} else {
		for _, b := range st.Branches {
			if b.ID == st.ActiveBranchID {
				fmt.Printf("Branch:       %s (%s)\n", b.Name, b.ID)
			}
		}
	}

	pending := false
	events, err := a.sched.GetScheduledEvents(cmd.Context(), domain.EventFilter{Executed: &pending})
	if err != nil {
		return err
	}
	fmt.Printf("Pending:      %d event(s)\n", len(events))
	if len(events) > 0 {
		fmt.Printf("Next:         %s on %s\n", events[0].Name, events[0].ScheduledFor)
	}
	return nil
}

// runAdvance resumes the clock for the duration of the command, since a
// fresh process always starts paused
func runAdvance(cmd *cobra.Command, args []string) error {
	days := 1
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid day count %q", args[0])
		}
		days = n
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	a.engine.Resume()
	adv, err := a.engine.Tick(cmd.Context(), days)
	a.engine.Pause()
	printAdvance(adv)
	return err
}

func runJump(cmd *cobra.Command, args []string) error {
	date, err := parseDateArg(args[0])
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	adv, err := a.engine.JumpTo(cmd.Context(), date)
	printAdvance(adv)
	return err
}

func runRollback(cmd *cobra.Command, args []string) error {
	date, err := parseDateArg(args[0])
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	rb, err := a.engine.RollbackTo(cmd.Context(), date)
	if err != nil {
		return err
	}
	fmt.Printf("Rolled back %s -> %s (%s policy, %d packet(s) purged)\n",
		rb.From, rb.To, rb.Policy, rb.PacketsPurged)
	return nil
}

func runBranchList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	st := a.engine.State()
	if len(st.Branches) == 0 {
		fmt.Println("No branches")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBRANCHED FROM\tCURRENT\tACTIVE")
	for _, b := range st.Branches {
		active := ""
		if b.ID == st.ActiveBranchID {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.ID, b.Name, b.BranchedFrom, b.CurrentDate, active)
	}
	w.Flush()
	return nil
}

func runBranchCreate(cmd *cobra.Command, args []string) error {
	var from *domain.Date
	if branchFrom != "" {
		d, err := parseDateArg(branchFrom)
		if err != nil {
			return err
		}
		from = &d
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.engine.CreateBranch(cmd.Context(), args[0], from)
	if err != nil {
		return err
	}
	fmt.Printf("Created branch %s (%s) from %s\n", b.Name, b.ID, b.BranchedFrom)
	return nil
}

func runBranchSwitch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	adv, err := a.engine.SwitchBranch(cmd.Context(), args[0])
	printAdvance(adv)
	return err
}

func eventFilter() (domain.EventFilter, error) {
	var f domain.EventFilter
	if eventType != "" {
		t, err := domain.ParseEventType(eventType)
		if err != nil {
			return f, err
		}
		f.Type = t
	}
	switch {
	case eventPending && eventExecuted:
		return f, fmt.Errorf("--pending and --executed are mutually exclusive")
	case eventPending:
		v := false
		f.Executed = &v
	case eventExecuted:
		v := true
		f.Executed = &v
	}
	var err error
	if eventFrom != "" {
		if f.From, err = parseDateArg(eventFrom); err != nil {
			return f, err
		}
	}
	if eventTo != "" {
		if f.To, err = parseDateArg(eventTo); err != nil {
			return f, err
		}
	}
	return f, nil
}

func runEventList(cmd *cobra.Command, args []string) error {
	f, err := eventFilter()
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	events, err := a.sched.GetScheduledEvents(cmd.Context(), f)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSCHEDULED\tEXECUTED")
	for _, e := range events {
		executed := "-"
		if e.ExecutedAt != nil {
			executed = e.ExecutedAt.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Type, e.ScheduledFor, executed)
	}
	w.Flush()
	return nil
}

func runEventSchedule(cmd *cobra.Command, args []string) error {
	if (scheduleDate == "") == (scheduleIn < 0) {
		return fmt.Errorf("exactly one of --date or --in is required")
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	var tmpl domain.EventTemplate
	if len(args) == 1 {
		if tmpl, err = a.catalog.Lookup(args[0]); err != nil {
			return err
		}
	} else {
		t, err := domain.ParseEventType(scheduleType)
		if err != nil {
			return err
		}
		tmpl = domain.EventTemplate{Name: scheduleName, Type: t, Description: scheduleDescription}
	}

	var id string
	if scheduleIn >= 0 {
		id, err = a.sched.ScheduleAfter(cmd.Context(), tmpl, scheduleIn)
	} else {
		date, perr := parseDateArg(scheduleDate)
		if perr != nil {
			return perr
		}
		id, err = a.sched.ScheduleEvent(cmd.Context(), tmpl, date)
	}
	if err != nil {
		return err
	}

	e, err := a.sched.GetEvent(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Printf("Scheduled %q (%s) for %s: %s\n", e.Name, e.Type, e.ScheduledFor, e.ID)
	return nil
}

func runEventReschedule(cmd *cobra.Command, args []string) error {
	date, err := parseDateArg(args[1])
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.sched.Reschedule(cmd.Context(), args[0], date); err != nil {
		return err
	}
	fmt.Printf("Rescheduled %s to %s\n", args[0], date)
	return nil
}

func runEventExecute(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	ok, err := a.exec.ExecuteEvent(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("Event %s had already been executed\n", args[0])
		return nil
	}
	fmt.Printf("Executed %s at %s\n", args[0], a.engine.CurrentDate())
	return nil
}

func runEventRunDue(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.exec.CheckAndExecuteDueEvents(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("%d event(s) executed as of %s\n", len(report.Executed), report.AsOf)
	printReport(&domain.ExecutionReport{Failed: report.Failed})
	return report.Err()
}

func runTemplates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cat, err := catalog.Load(cfg.Simulation.CatalogPath)
	if err != nil {
		return err
	}

	templates := cat.All()
	if templatesType != "" {
		t, err := domain.ParseEventType(templatesType)
		if err != nil {
			return err
		}
		templates = cat.ByType(t)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tNAME\tDESCRIPTION")
	for _, t := range templates {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Type, t.Name, t.Description)
	}
	w.Flush()
	fmt.Printf("\n%d template(s) from %s\n", len(templates), cat.Source())
	return nil
}

func runPacket(cmd *cobra.Command, args []string) error {
	date, err := parseDateArg(args[0])
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	var p *domain.DayPacket
	if !packetRegen {
		p, err = a.packets.Get(cmd.Context(), date)
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if packetRegen || p == nil {
		if p, err = a.packets.Generate(cmd.Context(), date); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func runSeed(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	days := seedDays
	if days <= 0 {
		days = a.cfg.Simulation.SeedDays
	}
	n, err := fixtures.Seed(cmd.Context(), a.store, a.engine.StartDate(), days, a.log)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d finance snapshot(s) from %s\n", n, a.engine.StartDate())
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	addr := a.cfg.Addr()
	if servePort != 0 {
		addr = fmt.Sprintf("%s:%d", a.cfg.Web.Host, servePort)
	}

	server := api.NewServer(api.Deps{
		Clock:     a.engine,
		Scheduler: a.sched,
		Executor:  a.exec,
		Packets:   a.packets,
		Templates: a.catalog,
		Logger:    a.log,
	}, addr)

	unsubscribe := a.engine.Subscribe(func(st timeline.State) {
		server.Broadcast(api.StreamEvent{Type: api.EventClock, Data: st})
	})
	defer unsubscribe()
	a.exec.OnFired(func(fired []domain.ScheduledEvent) {
		server.Broadcast(api.StreamEvent{Type: api.EventExecuted, Data: fired})
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx) })

	if a.cfg.Simulation.CatalogPath != "" {
		watcher, err := catalog.NewWatcher(a.catalog, a.cfg.Simulation.CatalogPath, func(err error) {
			data := map[string]any{"source": a.catalog.Source(), "count": len(a.catalog.All())}
			if err != nil {
				data["error"] = err.Error()
			}
			server.Broadcast(api.StreamEvent{Type: api.EventTemplatesReloaded, Data: data})
		}, a.log)
		if err != nil {
			return err
		}
		g.Go(func() error { return watcher.Run(ctx) })
	}

	if a.cfg.Autoplay.Enabled {
		runner, err := autoplay.New(a.engine, a.cfg.AutoplayRunner(), a.log)
		if err != nil {
			return err
		}
		a.engine.Resume()
		g.Go(func() error { return runner.Run(ctx) })
	}

	fmt.Printf("Serving API at http://%s\n", addr)
	return g.Wait()
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	model := tui.NewModel(tui.ModelConfig{
		Clock:  a.engine,
		Events: a.sched,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}
