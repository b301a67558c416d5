package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/cppsim/config"
	"github.com/wippyai/cppsim/loader"
	"github.com/wippyai/cppsim/memory"
	"github.com/wippyai/cppsim/sim"
	"github.com/wippyai/cppsim/trace"
)

type options struct {
	program     string
	configPath  string
	tracePath   string
	input       string
	steps       int
	seed        int64
	seedSet     bool
	inputSet    bool
	digest      bool
	interactive bool
}

func main() {
	var o options
	flag.StringVar(&o.program, "program", "", "Path to a YAML program description")
	flag.StringVar(&o.configPath, "config", "", "Path to cppsim.toml (optional)")
	flag.StringVar(&o.tracePath, "trace", "", "Write a CBOR event trace to this file")
	flag.StringVar(&o.input, "input", "", "Console input, overriding the program's")
	flag.IntVar(&o.steps, "steps", 0, "Stop after this many steps (0 runs to the end)")
	flag.Int64Var(&o.seed, "seed", 0, "Random seed, overriding the configuration")
	flag.BoolVar(&o.digest, "digest", false, "Print the SHA-256 digest of the event trace")
	flag.BoolVar(&o.interactive, "i", false, "Interactive step debugger")
	flag.Parse()
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			o.seedSet = true
		case "input":
			o.inputSet = true
		}
	})

	if o.program == "" {
		fmt.Fprintln(os.Stderr, "Usage: cppsim -program <prog.yaml> [-config cppsim.toml] [-steps n] [-trace out.cbor] [-seed n]")
		fmt.Fprintln(os.Stderr, "       cppsim -program <prog.yaml> -i  (interactive mode)")
		os.Exit(1)
	}

	code, err := run(o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

// session is a loaded program ready to run.
type session struct {
	cfg     *config.Config
	prog    *loader.Compiled
	sim     *sim.Simulation
	opts    sim.Options
	release func()
}

func open(ctx context.Context, o options) (*session, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	sim.SetLogger(logger.Named("sim"))
	memory.SetLogger(logger.Named("memory"))
	loader.SetLogger(logger.Named("loader"))

	prog, err := loader.Load(o.program)
	if err != nil {
		return nil, err
	}

	store, release, err := cfg.Store(ctx)
	if err != nil {
		return nil, err
	}
	opts := cfg.Options(store)
	if prog.Input != "" {
		opts.Input = prog.Input
	}
	if o.inputSet {
		opts.Input = o.input
	}
	if o.seedSet {
		opts.Seed = o.seed
	}

	s, err := sim.New(prog.Program, opts)
	if err != nil {
		release()
		return nil, err
	}
	logger.Debug("session opened",
		zap.String("program", prog.Name),
		zap.String("backend", cfg.Memory.Backend),
		zap.Int64("seed", opts.Seed))
	return &session{cfg: cfg, prog: prog, sim: s, opts: opts, release: release}, nil
}

func run(o options) (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if o.interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		return 1, fmt.Errorf("interactive mode needs a terminal")
	}

	sess, err := open(ctx, o)
	if err != nil {
		return 1, err
	}
	defer sess.release()

	if o.interactive {
		return 0, runInteractive(sess)
	}

	s := sess.sim
	var rec *trace.Recorder
	if o.tracePath != "" || o.digest {
		rec = trace.NewRecorder(nil)
		s.Subscribe(rec)
	}
	var diags []sim.Event
	s.Subscribe(sim.ObserverFunc(func(e sim.Event) {
		if e.IsDiagnostic() {
			diags = append(diags, e)
		}
	}))

	if err := s.Start(); err != nil {
		return 1, err
	}
	ar := sess.cfg.AutoRunOptions()
	if o.steps > 0 {
		ar.StepLimit = o.steps
	}
	runErr := s.AutoRun(ctx, ar)

	fmt.Print(s.Console().Output())
	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "step %d: %s: %s\n", d.Step, d.Severity, d.Message)
	}

	if rec != nil {
		t := rec.Trace(sess.prog.Name, sess.opts)
		if o.tracePath != "" {
			if err := trace.WriteFile(o.tracePath, t); err != nil {
				return 1, err
			}
		}
		if o.digest {
			d, err := trace.Digest(t)
			if err != nil {
				return 1, err
			}
			fmt.Fprintf(os.Stderr, "trace %s (%d events)\n", d, len(t.Records))
		}
	}

	if runErr != nil {
		return 1, runErr
	}
	if !s.AtEnd() {
		fmt.Fprintf(os.Stderr, "paused after %d steps\n", s.StepsTaken())
		return 0, nil
	}
	return int(s.ExitCode().Int() & 0xff), nil
}
