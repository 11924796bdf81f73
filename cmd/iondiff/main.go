package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/iondiff/internal/analysis"
	"github.com/san-kum/iondiff/internal/cache"
	"github.com/san-kum/iondiff/internal/campaign"
	"github.com/san-kum/iondiff/internal/config"
	"github.com/san-kum/iondiff/internal/md"
	"github.com/san-kum/iondiff/internal/msd"
	"github.com/san-kum/iondiff/internal/storage"
	"github.com/san-kum/iondiff/internal/store"
	"github.com/san-kum/iondiff/internal/sweep"
	"github.com/san-kum/iondiff/internal/tui"
)

var (
	dataDir    string
	configFile string
	preset     string
	campaignID string

	steps       int
	temperature float64
	seed        int64
	minIter     int
	maxIter     int
	semAbs      float64
	semRel      float64
	clean       bool

	sweepTemps   []float64
	analyzeAtoms int
	analyzeLags  int
	exportOut    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "iondiff",
		Short: "iterative MD campaigns for ionic diffusion coefficients",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "iondiff-data", "data directory")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "create the data directory, host data and a sample config",
		RunE:  initWorkspace,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a diffusion campaign to convergence",
		RunE:  runCampaign,
	}
	addCampaignFlags(runCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "run a campaign with live terminal output",
		RunE:  watchCampaign,
	}
	addCampaignFlags(watchCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored campaigns",
		RunE:  listCampaigns,
	}

	showCmd := &cobra.Command{
		Use:   "show [campaign_id]",
		Short: "show campaign details",
		Args:  cobra.ExactArgs(1),
		RunE:  showCampaign,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [campaign_id]",
		Short: "plot the per-iteration estimate trace",
		Args:  cobra.ExactArgs(1),
		RunE:  plotCampaign,
	}

	exportCmd := &cobra.Command{
		Use:   "export [campaign_id]",
		Short: "export campaign metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCampaign,
	}
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write to a file instead of stdout")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [campaign_id]",
		Short: "export the accumulated trajectory to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets [material]",
		Short: "list campaign protocols for a material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			protocols := config.ListPresets(args[0])
			if len(protocols) == 0 {
				fmt.Printf("no presets for material: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range protocols {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run campaigns across temperatures and fit the Arrhenius law",
		RunE:  sweepCampaigns,
	}
	addCampaignFlags(sweepCmd)
	sweepCmd.Flags().Float64SliceVar(&sweepTemps, "temps", []float64{500, 600, 700}, "temperatures in K")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [campaign_id]",
		Short: "velocity autocorrelation and vibrational spectrum",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeCampaign,
	}
	analyzeCmd.Flags().IntVar(&analyzeAtoms, "atoms", 0, "atoms to analyze (0 = all)")
	analyzeCmd.Flags().IntVar(&analyzeLags, "lags", 64, "correlation window in frames")

	rootCmd.AddCommand(initCmd, runCmd, watchCmd, sweepCmd, listCmd, showCmd, plotCmd, analyzeCmd, exportCmd, exportCSVCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCampaignFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "preset as material/protocol")
	cmd.Flags().StringVar(&campaignID, "id", "", "campaign id (generated when empty)")
	cmd.Flags().IntVar(&steps, "steps", 0, "MD steps per run")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "temperature in K")
	cmd.Flags().Int64Var(&seed, "seed", 0, "base random seed")
	cmd.Flags().IntVar(&minIter, "min-iter", 0, "minimum iterations")
	cmd.Flags().IntVar(&maxIter, "max-iter", 0, "maximum iterations")
	cmd.Flags().Float64Var(&semAbs, "sem", 0, "absolute SEM threshold")
	cmd.Flags().Float64Var(&semRel, "sem-rel", 0, "relative SEM threshold")
	cmd.Flags().BoolVar(&clean, "clean", false, "remove run workdirs after the campaign")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		material, protocol, ok := strings.Cut(preset, "/")
		if !ok {
			return nil, fmt.Errorf("preset must be material/protocol, got %q", preset)
		}
		p := config.GetPreset(material, protocol)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(material))
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("steps") {
		cfg.Engine.Steps = steps
	}
	if cmd.Flags().Changed("temperature") {
		cfg.Engine.Temperature = temperature
	}
	if cmd.Flags().Changed("seed") {
		cfg.Engine.Seed = seed
	}
	if cmd.Flags().Changed("min-iter") {
		cfg.Criteria.MinIterations = minIter
	}
	if cmd.Flags().Changed("max-iter") {
		cfg.Criteria.MaxIterations = maxIter
	}
	if cmd.Flags().Changed("sem") {
		cfg.Criteria.SEMThreshold = semAbs
	}
	if cmd.Flags().Changed("sem-rel") {
		cfg.Criteria.SEMRelative = semRel
	}
	if cmd.Flags().Changed("clean") {
		cfg.CleanWorkdirs = clean
	}
	if cmd.Flags().Changed("data") {
		cfg.DataDir = dataDir
		cfg.HostData = filepath.Join(dataDir, "host.yaml")
	}

	return cfg, cfg.Validate()
}

// buildController wires the campaign from a validated config and returns
// the content-address of its input parameters. Concurrent campaigns must
// not share workRoot: run labels restart per campaign, so colliding roots
// would overwrite and clean each other's run directories.
func buildController(cfg *config.Config, workRoot string) (*campaign.Controller, string, error) {
	ca := cache.New(filepath.Join(cfg.DataDir, "params"))
	if err := ca.Init(); err != nil {
		return nil, "", err
	}
	paramsKey, _, err := ca.GetOrCreate(cfg)
	if err != nil {
		return nil, "", err
	}

	// A missing or broken host artifact is reported by the controller's
	// prerequisite check, not here.
	host, _ := md.LoadHostData(cfg.HostData)
	engine := &md.Engine{
		Host:        host,
		Friction:    cfg.Engine.Friction,
		SampleEvery: cfg.Engine.SampleEvery,
	}
	submitter := md.NewLocalSubmitter(workRoot, cfg.HostData, engine, cfg.Structure.MobileSpecies)
	submitter.MobileOnly = cfg.Engine.MobileOnly

	frameSpacing := cfg.Engine.Timestep * float64(cfg.Engine.SampleEvery)
	estimator := msd.NewEstimator(frameSpacing)

	ctrl := campaign.New(
		cfg.BuildStructure(),
		submitter,
		estimator,
		cfg.CampaignCriteria(),
		cfg.EstimatorParams(),
		cfg.RunSettings(),
	)
	ctrl.CleanWorkdirs(cfg.CleanWorkdirs)
	return ctrl, paramsKey, nil
}

func initWorkspace(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}

	hostPath := filepath.Join(dataDir, "host.yaml")
	if _, err := os.Stat(hostPath); os.IsNotExist(err) {
		if err := md.SaveHostData(hostPath, md.DefaultHostData()); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", hostPath)
	}

	cfgPath := filepath.Join(dataDir, "campaign.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		cfg.DataDir = dataDir
		cfg.HostData = hostPath
		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", cfgPath)
	}

	fmt.Printf("workspace ready, try: iondiff run --config %s\n", cfgPath)
	return nil
}

func runCampaign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(filepath.Join(cfg.DataDir, "campaigns"))
	if err := st.Init(); err != nil {
		return err
	}

	ctrl, paramsKey, err := buildController(cfg, filepath.Join(cfg.DataDir, "work"))
	if err != nil {
		return err
	}
	ctrl.SetReporter(campaign.ReporterFunc(func(e campaign.Event) {
		if e.Estimate != nil {
			fmt.Printf("iteration %d (%s): D = %.4g ± %.2g\n", e.Iteration, e.Label, e.Estimate.Mean, e.Estimate.SEM)
		}
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running campaign for %s in %s host...\n", cfg.Structure.MobileSpecies, cfg.Structure.HostSpecies)
	start := time.Now()

	result, err := ctrl.Run(ctx)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	id, err := st.Save(campaignID, result, paramsKey)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("campaign id: %s\n\n", id)
	fmt.Print(tui.Summary(result))
	if trace := tui.EstimateTrace(result.History); trace != "" {
		fmt.Println("\n" + trace)
	}

	if result.Outcome.Failed() {
		return fmt.Errorf("campaign failed: %s", result.Outcome)
	}
	return nil
}

func watchCampaign(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(filepath.Join(cfg.DataDir, "campaigns"))
	if err := st.Init(); err != nil {
		return err
	}

	ctrl, paramsKey, err := buildController(cfg, filepath.Join(cfg.DataDir, "work"))
	if err != nil {
		return err
	}

	events := make(chan campaign.Event, 32)
	results := make(chan tui.DoneMsg, 1)
	ctrl.SetReporter(campaign.ReporterFunc(func(e campaign.Event) {
		events <- e
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		result, err := ctrl.Run(ctx)
		if result != nil {
			if _, serr := st.Save(campaignID, result, paramsKey); serr != nil && err == nil {
				err = serr
			}
		}
		results <- tui.DoneMsg{Result: result, Err: err}
		close(events)
	}()

	p := tea.NewProgram(tui.NewModel(events, results))
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

func listCampaigns(cmd *cobra.Command, args []string) error {
	st := storage.New(filepath.Join(dataDir, "campaigns"))
	campaigns, err := st.List()
	if err != nil {
		return err
	}
	if len(campaigns) == 0 {
		fmt.Println("no campaigns found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tOUTCOME\tITER\tRUNS")
	for _, c := range campaigns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			c.ID,
			c.Timestamp.Format("2006-01-02 15:04:05"),
			c.Outcome,
			c.Iterations,
			len(c.Runs),
		)
	}
	return w.Flush()
}

func showCampaign(cmd *cobra.Command, args []string) error {
	st := storage.New(filepath.Join(dataDir, "campaigns"))
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("campaign: %s\n", meta.ID)
	fmt.Printf("outcome: %s\n", meta.Outcome)
	fmt.Printf("iterations: %d\n", meta.Iterations)
	if meta.ParamsKey != "" {
		fmt.Printf("params: %s\n", meta.ParamsKey)
	}
	if meta.Error != "" {
		fmt.Printf("error: %s\n", meta.Error)
	}

	fmt.Println("\nestimates:")
	for sp, e := range meta.Estimates {
		fmt.Printf("  D[%s] = %.4g ± %.2g\n", sp, e.Mean, e.SEM)
	}

	fmt.Println("\nruns:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  LABEL\tSTATUS\tFRAMES")
	for _, r := range meta.Runs {
		fmt.Fprintf(w, "  %s\t%s\t%d\n", r.Label, r.Status, r.Frames)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if len(meta.Cleaned) > 0 {
		fmt.Printf("\ncleaned: %s\n", strings.Join(meta.Cleaned, ", "))
	}
	return nil
}

func plotCampaign(cmd *cobra.Command, args []string) error {
	st := storage.New(filepath.Join(dataDir, "campaigns"))
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	if len(meta.History) < 2 {
		return fmt.Errorf("not enough iterations to plot")
	}

	means := make([]float64, len(meta.History))
	sems := make([]float64, len(meta.History))
	for i, h := range meta.History {
		means[i] = h.Mean
		sems[i] = h.SEM
	}

	fmt.Printf("campaign: %s (%s)\n\n", meta.ID, meta.Outcome)
	fmt.Println(asciigraph.Plot(means,
		asciigraph.Height(10),
		asciigraph.Width(70),
		asciigraph.Caption("diffusion estimate per iteration"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(sems,
		asciigraph.Height(8),
		asciigraph.Width(70),
		asciigraph.Caption("standard error per iteration"),
	))
	return nil
}

func exportCampaign(cmd *cobra.Command, args []string) error {
	st := storage.New(filepath.Join(dataDir, "campaigns"))
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	// Trajectory is optional; failed campaigns may not have written one.
	tr, err := st.LoadTrajectory(args[0])
	if err != nil {
		tr = nil
	}
	if exportOut != "" {
		if err := store.ExportJSONFile(exportOut, meta, tr); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", exportOut)
		return nil
	}
	return store.ExportJSON(os.Stdout, meta, tr)
}

func sweepCampaigns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st := storage.New(filepath.Join(cfg.DataDir, "campaigns"))
	if err := st.Init(); err != nil {
		return err
	}

	factory := func(temperature float64) (sweep.Runner, error) {
		c := *cfg
		c.Engine.Temperature = temperature
		workRoot := filepath.Join(cfg.DataDir, "work", fmt.Sprintf("%.0fK", temperature))
		ctrl, _, err := buildController(&c, workRoot)
		return ctrl, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("sweeping %v K...\n", sweepTemps)
	points, err := sweep.New(factory, sweepTemps).Run(ctx)
	if err != nil {
		return err
	}

	species := cfg.Structure.MobileSpecies
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEMP\tOUTCOME\tD\tSEM")
	for _, p := range points {
		switch {
		case p.Err != nil:
			fmt.Fprintf(w, "%.0fK\terror: %v\t\t\n", p.Temperature, p.Err)
		case p.Result != nil:
			e := p.Result.Estimates[species]
			fmt.Fprintf(w, "%.0fK\t%s\t%.4g\t%.2g\n", p.Temperature, p.Result.Outcome.Code(), e.Mean, e.SEM)
			id := fmt.Sprintf("sweep_%s_%.0fK", species, p.Temperature)
			if _, err := st.Save(id, p.Result, ""); err != nil {
				return err
			}
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fit, err := sweep.Arrhenius(points, species)
	if err != nil {
		fmt.Printf("\nno Arrhenius fit: %v\n", err)
		return nil
	}
	fmt.Printf("\nArrhenius fit over %d points:\n", fit.Points)
	fmt.Printf("  activation energy: %.4f eV\n", fit.ActivationEnergy)
	fmt.Printf("  prefactor: %.4g\n", fit.Prefactor)
	return nil
}

func analyzeCampaign(cmd *cobra.Command, args []string) error {
	st := storage.New(filepath.Join(dataDir, "campaigns"))
	tr, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	if tr.Len() < 2 {
		return fmt.Errorf("no trajectory to analyze")
	}

	atoms := analyzeAtoms
	if atoms <= 0 {
		atoms = tr.Atoms()
	}
	lags := analyzeLags
	if lags > tr.Len() {
		lags = tr.Len()
	}

	vacf, err := analysis.VACF(tr, atoms, lags)
	if err != nil {
		return err
	}

	fmt.Printf("campaign: %s (%d frames, %d atoms)\n\n", args[0], tr.Len(), atoms)
	fmt.Println(asciigraph.Plot(analysis.Normalize(vacf),
		asciigraph.Height(10),
		asciigraph.Width(70),
		asciigraph.Caption("velocity autocorrelation"),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(analysis.Spectrum(vacf),
		asciigraph.Height(10),
		asciigraph.Width(70),
		asciigraph.Caption("vibrational spectrum"),
	))
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(filepath.Join(dataDir, "campaigns"))
	tr, err := st.LoadTrajectory(args[0])
	if err != nil {
		return err
	}
	if tr.Len() == 0 {
		return fmt.Errorf("no trajectory to export")
	}

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()

	if err := w.Write([]string{"frame", "step", "atom", "x", "y", "z"}); err != nil {
		return err
	}
	for fi, frame := range tr.Frames {
		for ai, p := range frame.Positions {
			row := []string{strconv.Itoa(fi), strconv.Itoa(frame.Step), strconv.Itoa(ai)}
			for d := 0; d < 3; d++ {
				row = append(row, strconv.FormatFloat(p[d], 'g', -1, 64))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}
