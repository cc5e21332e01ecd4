package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/miniprompt/agent"
	"github.com/aschepis/backscratcher/miniprompt/client"
	"github.com/aschepis/backscratcher/miniprompt/config"
	"github.com/aschepis/backscratcher/miniprompt/llm"
	mplogger "github.com/aschepis/backscratcher/miniprompt/logger"
	"github.com/aschepis/backscratcher/miniprompt/tools"
	"github.com/rs/zerolog"
)

const (
	exitOK      = 0
	exitError   = 1
	exitNoMatch = 2
)

// errNoMatch reports that the extractor found nothing in the answer.
var errNoMatch = errors.New("no match in model output")

type options struct {
	configPath string
	provider   string
	model      string
	system     string
	extract    string
	key        string
	classes    string
	leading    bool
	retries    int
	logFile    string
	pretty     bool
	workspace  string
	timeout    time.Duration
	initConfig bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	fs := flag.NewFlagSet("miniprompt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: miniprompt [flags] [prompt...]\n\nThe prompt is read from stdin when no arguments are given.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	fs.StringVar(&opts.provider, "provider", "", "Provider to call (openai, openrouter, anthropic)")
	fs.StringVar(&opts.model, "model", "", modelUsage())
	fs.StringVar(&opts.system, "system", "", "System prompt, overrides call.system from config")
	fs.StringVar(&opts.extract, "extract", "", "Extract from the answer: json, python, code, tag or class")
	fs.StringVar(&opts.key, "key", "", "Tag name for -extract tag, label key for -extract class, language for -extract code")
	fs.StringVar(&opts.classes, "classes", "", "Comma-separated class labels for -extract class")
	fs.BoolVar(&opts.leading, "leading", false, "Take the first code block instead of the last")
	fs.IntVar(&opts.retries, "retries", -1, "Retries for rate-limited or failed requests (default from config)")
	fs.StringVar(&opts.logFile, "logfile", "", "Path to log file. If not set, logs to stderr")
	fs.BoolVar(&opts.pretty, "pretty", false, "Use pretty console output (only valid when logfile is not set)")
	fs.StringVar(&opts.workspace, "workspace", "", "Directory the model may read through file tools")
	fs.DurationVar(&opts.timeout, "timeout", 0, "Overall timeout, e.g. 90s. 0 means none")
	fs.BoolVar(&opts.initConfig, "init-config", false, "Write the effective configuration to -config and exit")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if opts.logFile != "" && opts.pretty {
		return nil, nil, fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}
	return opts, fs.Args(), nil
}

// modelUsage describes -model, listing the catalog names per provider.
func modelUsage() string {
	var b strings.Builder
	b.WriteString("Model name or id. Defaults to the provider's default model. Catalog names:")
	for _, p := range []llm.ProviderKind{llm.ProviderOpenRouter, llm.ProviderOpenAI, llm.ProviderAnthropic} {
		fmt.Fprintf(&b, "\n  %s: %s", p, strings.Join(llm.CatalogNames(p), ", "))
	}
	return b.String()
}

// applyFlags overrides config values with the flags that were set.
func applyFlags(cfg *config.Config, opts *options) error {
	if opts.provider != "" {
		cfg.Provider = opts.provider
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.system != "" {
		cfg.Call.System = opts.system
	}
	if opts.retries >= 0 {
		cfg.Retries = uint64(opts.retries)
	}
	if opts.logFile != "" {
		cfg.LogFile = opts.logFile
	}
	return cfg.Validate()
}

// readPrompt joins the positional arguments, or reads stdin when there are none.
func readPrompt(args []string, stdin io.Reader) (string, error) {
	prompt := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt from stdin: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, rest, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitError
	}
	if err := applyFlags(cfg, opts); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return exitError
	}

	if opts.initConfig {
		if err := config.Save(cfg, opts.configPath); err != nil {
			fmt.Fprintf(stderr, "Failed to save configuration: %v\n", err)
			return exitError
		}
		fmt.Fprintf(stdout, "Wrote %s\n", opts.configPath)
		return exitOK
	}

	logger, err := mplogger.InitWithOptions(cfg.LogFile, opts.pretty, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize logger: %v\n", err)
		return exitError
	}

	extract, err := newExtractor(opts.extract, opts.key, opts.classes, opts.leading)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	prompt, err := readPrompt(rest, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	caller, err := buildCaller(cfg, opts.workspace, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to set up model caller")
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	answer, err := llm.CallText(ctx, caller, cfg.CallBase(prompt), nil)
	if err != nil {
		logger.Error().Err(err).Msg("Model call failed")
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}

	outputs, err := extract(answer)
	if err != nil {
		fmt.Fprintf(stderr, "%v (-extract %s)\n", err, opts.extract)
		return exitNoMatch
	}
	for _, out := range outputs {
		fmt.Fprintln(stdout, out)
	}
	return exitOK
}

// buildCaller resolves the provider, creates its caller and layers retry and,
// with a workspace, the tool-dispatch loop on top.
func buildCaller(cfg *config.Config, workspace string, logger zerolog.Logger) (llm.Caller, error) {
	enabled, err := cfg.EnabledProviders()
	if err != nil {
		return nil, err
	}
	registry := llm.NewProviderRegistry(cfg.ProviderConfig(), enabled)
	key, err := registry.ResolvePreferences(cfg.Preferences())
	if err != nil {
		return nil, err
	}
	logger.Debug().
		Str("provider", string(key.Provider)).
		Str("model", key.Model.ID).
		Msg("Resolved model")

	caller, err := client.NewFactory(nil, logger).Caller(key)
	if err != nil {
		return nil, err
	}
	caller = llm.WithRetry(caller, cfg.RetryPolicy(), logger)

	if workspace == "" {
		return caller, nil
	}
	registryTools := tools.NewRegistry(logger)
	if err := registryTools.RegisterWorkspaceTools(workspace); err != nil {
		return nil, err
	}
	session, err := agent.NewSession(caller, registryTools, logger)
	if err != nil {
		return nil, err
	}
	return session, nil
}
