package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/matchup/internal/catalog"
	"github.com/banshee-data/matchup/internal/condition"
	"github.com/banshee-data/matchup/internal/config"
	"github.com/banshee-data/matchup/internal/ingest"
	"github.com/banshee-data/matchup/internal/matchup"
	"github.com/banshee-data/matchup/internal/qc"
	"github.com/banshee-data/matchup/internal/reader"
	"github.com/banshee-data/matchup/internal/reader/csvreader"
	"github.com/banshee-data/matchup/internal/screening"
	"github.com/banshee-data/matchup/internal/strategy"
	"github.com/banshee-data/matchup/internal/timeutil"
)

type app struct {
	stdout io.Writer
	stderr io.Writer
	clock  timeutil.Clock
}

// commonFlags are shared by every subcommand that touches the catalog.
type commonFlags struct {
	config      string
	verbose     bool
	veryVerbose bool
}

func (a *app) newFlagSet(name string, c *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.StringVar(&c.config, "config", "", "System config file (YAML)")
	fs.BoolVar(&c.verbose, "v", false, "Log per-stage counts and timings")
	fs.BoolVar(&c.veryVerbose, "vv", false, "Also log per-sample detail")
	return fs
}

// setup configures logging and loads the system config. Without -config the
// defaults apply.
func (a *app) setup(c commonFlags) (*config.SystemConfig, error) {
	a.setLogWriters(c.verbose || c.veryVerbose, c.veryVerbose)
	if c.config == "" {
		return config.ParseSystemConfig(nil)
	}
	return config.LoadSystemConfig(c.config)
}

func (a *app) setLogWriters(diag, trace bool) {
	ops := a.stderr
	var d, t io.Writer
	if diag {
		d = a.stderr
	}
	if trace {
		t = a.stderr
	}
	catalog.SetLogWriters(ops, d, t)
	condition.SetLogWriters(ops, d, t)
	screening.SetLogWriters(ops, d, t)
	strategy.SetLogWriters(ops, d, t)
	ingest.SetLogWriters(ops, d, t)
	qc.SetLogWriters(ops, d, t)
}

func openStore(sys *config.SystemConfig) (*catalog.Store, error) {
	store, err := catalog.Open(sys.Database.Path)
	if err != nil {
		return nil, err
	}
	if sys.Database.AutoMigrate {
		if err := store.MigrateUp(); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}

// readerRegistry registers the built-in readers and binds every sensor the
// system config names. Use case sensors are bound on top.
func readerRegistry(sys *config.SystemConfig, sensors ...config.Sensor) (*reader.Registry, error) {
	r := reader.NewRegistry()
	csvreader.Register(r)
	for sensor, tag := range sys.Readers {
		if err := r.Bind(sensor, tag); err != nil {
			return nil, err
		}
	}
	for _, s := range sensors {
		tag, ok := sys.ReaderFor(s)
		if !ok {
			return nil, fmt.Errorf("%w: no reader for sensor %q", config.ErrInvalidConfig, s.Name)
		}
		if err := r.Bind(s.Name, tag); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (a *app) handleRun(args []string) error {
	var c commonFlags
	fs := a.newFlagSet("run", &c)
	useCase := fs.String("usecase", "", "Use case config file (JSON)")
	start := fs.String("start", "", "First day of the run (yyyy-DDD)")
	end := fs.String("end", "", "Last day of the run, inclusive (yyyy-DDD)")
	out := fs.String("qc", "", "Also write QC artefacts to this directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *useCase == "" || *start == "" || *end == "" {
		return errors.New("-usecase, -start and -end are required")
	}

	sys, err := a.setup(c)
	if err != nil {
		return err
	}
	uc, err := config.LoadUseCaseConfig(*useCase)
	if err != nil {
		return err
	}
	from, to, err := timeutil.RunWindow(*start, *end)
	if err != nil {
		return err
	}
	readers, err := readerRegistry(sys, uc.PrimarySensor, uc.SecondarySensor)
	if err != nil {
		return err
	}
	store, err := openStore(sys)
	if err != nil {
		return err
	}
	defer store.Close()

	began := a.clock.Now()
	res, err := strategy.DefaultRegistry().Run(strategy.RunContext{
		Config:  *uc,
		Start:   from,
		End:     to,
		Catalog: store,
		Readers: readers,
	})
	if err != nil {
		return err
	}
	elapsed := a.clock.Since(began)

	cfgJSON, err := json.Marshal(uc)
	if err != nil {
		return err
	}
	id, err := store.SaveRun(catalog.Run{
		UseCase:    uc.Name,
		Strategy:   uc.GetStrategy(),
		Start:      from,
		End:        to,
		ConfigJSON: string(cfgJSON),
	}, res)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "run %s: %s %s..%s\n", id, uc.Name, timeutil.FormatDOY(from), timeutil.FormatDOY(to))
	fmt.Fprintf(a.stdout, "  raw %d, matchups %d in %d sets, skipped %d, took %v\n",
		res.RawCount, res.NumMatchups(), res.Collection.Len(), res.Skipped, elapsed.Round(time.Millisecond))
	for _, d := range res.Diagnostics {
		fmt.Fprintf(a.stdout, "  skipped %s: %s\n", d.Path, d.Message)
	}

	dir := *out
	if dir == "" {
		dir = uc.GetOutputPath()
	}
	if dir == "" {
		return nil
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(sys.Output.Directory, dir)
	}
	return a.writeQC(dir, id, res)
}

func (a *app) handleIngest(args []string) error {
	var c commonFlags
	fs := a.newFlagSet("ingest", &c)
	sensor := fs.String("sensor", "", "Sensor name of the products")
	tag := fs.String("reader", "", "Reader tag, overrides the system config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sensor == "" || fs.NArg() == 0 {
		return errors.New("-sensor and at least one product path are required")
	}

	sys, err := a.setup(c)
	if err != nil {
		return err
	}
	readers, err := readerRegistry(sys, config.Sensor{Name: *sensor, Reader: *tag})
	if err != nil {
		return err
	}
	store, err := openStore(sys)
	if err != nil {
		return err
	}
	defer store.Close()

	obs, diags := ingest.New(store, readers).IngestAll(*sensor, fs.Args())
	fmt.Fprintf(a.stdout, "ingested %d of %d %s products\n", len(obs), fs.NArg(), *sensor)
	for _, d := range diags {
		fmt.Fprintf(a.stdout, "  skipped %s: %s\n", d.Path, d.Message)
	}
	if len(obs) == 0 {
		return fmt.Errorf("no %s products ingested", *sensor)
	}
	return nil
}

func (a *app) handleRuns(args []string) error {
	var c commonFlags
	fs := a.newFlagSet("runs", &c)
	limit := fs.Int("n", 20, "Number of runs to list, 0 for all")
	del := fs.String("delete", "", "Delete the run with this id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sys, err := a.setup(c)
	if err != nil {
		return err
	}
	store, err := openStore(sys)
	if err != nil {
		return err
	}
	defer store.Close()

	if *del != "" {
		if err := store.DeleteRun(*del); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "deleted run %s\n", *del)
		return nil
	}

	runs, err := store.ListRuns(*limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSE CASE\tSTRATEGY\tWINDOW\tRAW\tMATCHUPS\tSKIPPED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s..%s\t%d\t%d\t%d\n", r.ID, r.UseCase, r.Strategy,
			timeutil.FormatDOY(r.Start), timeutil.FormatDOY(r.End), r.RawCount, r.MatchupCount, r.Skipped)
	}
	return tw.Flush()
}

func (a *app) handleQC(args []string) error {
	var c commonFlags
	fs := a.newFlagSet("qc", &c)
	runID := fs.String("run", "", "Run id")
	out := fs.String("out", "", "Output directory, defaults to the system output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("-run is required")
	}
	sys, err := a.setup(c)
	if err != nil {
		return err
	}
	store, err := openStore(sys)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := store.LoadRun(*runID)
	if err != nil {
		return err
	}
	dir := *out
	if dir == "" {
		dir = sys.Output.Directory
	}
	return a.writeQC(dir, *runID, res)
}

func (a *app) handleMigrate(args []string) error {
	var c commonFlags
	fs := a.newFlagSet("migrate", &c)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected one of: up, down, version")
	}
	sys, err := a.setup(c)
	if err != nil {
		return err
	}
	store, err := catalog.Open(sys.Database.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	switch fs.Arg(0) {
	case "up":
		err = store.MigrateUp()
	case "down":
		err = store.MigrateDown()
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", fs.Arg(0))
	}
	if err != nil {
		return err
	}
	v, dirty, err := store.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "schema version %d (dirty: %v)\n", v, dirty)
	return nil
}

func (a *app) writeQC(dir, runID string, res *matchup.Result) error {
	arts, err := qc.WriteArtifacts(dir, runID, res.Collection)
	if err != nil {
		return fmt.Errorf("qc: %w", err)
	}
	if err := qc.WriteText(a.stdout, qc.Summarize(res.Collection)); err != nil {
		return err
	}
	for _, p := range []string{arts.Summary, arts.Chart, arts.Locations} {
		if p != "" {
			fmt.Fprintf(a.stdout, "wrote %s\n", p)
		}
	}
	return nil
}
