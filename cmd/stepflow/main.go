// Command stepflow validates and inspects declarative step graph
// definitions.
//
// Usage:
//
//	stepflow validate --file graph.yaml   # validate a graph definition
//	stepflow inspect --file graph.yaml    # print the parsed definition as JSON
//	stepflow version                      # show version information
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/stepflow-io/stepflow/config"
	"github.com/stepflow-io/stepflow/workflow"
)

// Injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		runValidate(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func initLogger(configPath string) *zap.Logger {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func loadDefinition(path string) *workflow.Definition {
	if path == "" {
		fmt.Fprintln(os.Stderr, "Missing required --file flag")
		os.Exit(1)
	}

	var def *workflow.Definition
	var err error
	if strings.HasSuffix(path, ".json") {
		def, err = workflow.LoadDefinitionFromJSONFile(path)
	} else {
		def, err = workflow.LoadDefinitionFromYAMLFile(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid definition: %v\n", err)
		os.Exit(1)
	}
	return def
}

// runValidate proves the definition is structurally sound and acyclic. Work
// functions are stubbed; only the graph shape is checked.
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	file := fs.String("file", "", "Path to a graph definition (YAML or JSON)")
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	logger := initLogger(*configPath)
	defer logger.Sync()

	def := loadDefinition(*file)

	steps, err := buildWithStubs(def)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid definition: %v\n", err)
		os.Exit(1)
	}

	if _, err := workflow.NewDAGOrchestrator(steps, workflow.WithLogger(logger)); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid graph: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK: %s (%d steps)\n", def.Name, len(def.Steps))
}

// buildWithStubs binds every work name to a no-op so validation can run the
// full graph checks without real work functions.
func buildWithStubs(def *workflow.Definition) ([]workflow.Step, error) {
	registry := workflow.NewWorkRegistry()
	noop := func(ctx context.Context, results map[string]any) (any, error) {
		return nil, nil
	}
	for _, step := range def.Steps {
		name := step.Work
		if name == "" {
			name = step.Name
		}
		registry.Register(name, noop)
	}
	return def.Build(registry)
}

func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	file := fs.String("file", "", "Path to a graph definition (YAML or JSON)")
	fs.Parse(args)

	def := loadDefinition(*file)
	out, err := def.ToJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode definition: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(out)
}

func printVersion() {
	fmt.Printf("stepflow %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`stepflow - dependency-aware step graph toolkit

Usage:
  stepflow <command> [options]

Commands:
  validate  Validate a graph definition file
  inspect   Print the parsed definition as JSON
  version   Show version information
  help      Show this help message

Options for 'validate':
  --file <path>     Path to a graph definition (YAML or JSON)
  --config <path>   Path to configuration file (YAML)

Examples:
  stepflow validate --file graph.yaml
  stepflow inspect --file graph.json`)
}
