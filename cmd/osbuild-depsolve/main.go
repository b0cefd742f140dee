// osbuild-depsolve reads one JSON solve request from stdin, resolves it
// with the configured backend, and writes the JSON response to stdout.
// On failure it writes a {"kind", "reason"} error document to stdout
// and exits nonzero.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/osbuild-depsolve/internal/logging"
	"github.com/osbuild/osbuild-depsolve/internal/solver"
	"github.com/osbuild/osbuild-depsolve/internal/solver/api"
	"github.com/osbuild/osbuild-depsolve/internal/solver/dnf"
	"github.com/osbuild/osbuild-depsolve/internal/solver/pacman"
)

const defaultConfigFile = "/etc/osbuild-depsolve/osbuild-depsolve.toml"

// configEnvVar overrides the config file location, mainly for tests.
const configEnvVar = "OSBUILD_DEPSOLVE_CONFIG"

func newSolver(ctx context.Context, config *serviceConfig, request solver.Request, persistDir string) (solver.Solver, error) {
	switch config.Backend {
	case "dnf":
		s, err := dnf.NewDNF4(ctx, request.Config, persistDir)
		if err != nil {
			return nil, err
		}
		if config.DNFEngine != "" {
			s.SetEngineCommand(config.DNFEngine)
		}
		if config.MaxCacheSize > 0 {
			s.SetMaxCacheSize(config.MaxCacheSize)
		}
		return s, nil
	case "dnf5":
		s, err := dnf.NewDNF5(ctx, request.Config, persistDir)
		if err != nil {
			return nil, err
		}
		if config.DNF5Engine != "" {
			s.SetEngineCommand(config.DNF5Engine)
		}
		if config.MaxCacheSize > 0 {
			s.SetMaxCacheSize(config.MaxCacheSize)
		}
		return s, nil
	case "pacman":
		return pacman.New(request.Config)
	default:
		return nil, solver.InvalidRequestError("Unknown solver backend '%s'", config.Backend)
	}
}

func solve(ctx context.Context, config *serviceConfig, data []byte) (interface{}, error) {
	request, version, err := api.ParseRequest(data)
	if err != nil {
		return nil, err
	}
	codec, err := api.ForVersion(version)
	if err != nil {
		return nil, err
	}

	persistDir, err := os.MkdirTemp("", "osbuild-depsolve-")
	if err != nil {
		return nil, solver.InternalError("error creating persist directory: %v", err)
	}
	defer os.RemoveAll(persistDir)

	s, err := newSolver(ctx, config, request, persistDir)
	if err != nil {
		return nil, err
	}
	logrus.Infof("solving %s request with the %s backend", request.Command, s.Name())

	switch request.Command {
	case solver.CommandDepsolve:
		result, err := s.Depsolve(*request.Depsolve)
		if err != nil {
			return nil, err
		}
		return codec.SerializeDepsolve(s.Name(), result)
	case solver.CommandDump:
		result, err := s.Dump()
		if err != nil {
			return nil, err
		}
		return codec.SerializeDump(s.Name(), result), nil
	case solver.CommandSearch:
		result, err := s.Search(*request.Search)
		if err != nil {
			return nil, err
		}
		return codec.SerializeSearch(s.Name(), result), nil
	default:
		return nil, solver.InvalidRequestError("Invalid command '%s': must be one of %s", request.Command, solver.CommandNames())
	}
}

func run() error {
	configFile := defaultConfigFile
	if env := os.Getenv(configEnvVar); env != "" {
		configFile = env
	}
	flag.StringVar(&configFile, "config", configFile, "path to the configuration file")
	backend := flag.String("backend", "", "override the configured solver backend")
	journal := flag.Bool("journal", false, "log to the systemd journal")
	flag.Parse()

	config, err := parseConfig(configFile)
	if err != nil {
		return solver.InternalError("Could not load config file '%s': %v", configFile, err)
	}
	if *backend != "" {
		config.Backend = *backend
	}

	logrus.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(config.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	if *journal || config.Journal {
		logrus.AddHook(&logging.JournalHook{})
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return solver.InternalError("error reading request: %v", err)
	}

	response, err := solve(context.Background(), config, data)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(response)
}

func main() {
	if err := run(); err != nil {
		logrus.Error(err)
		fmt.Println(string(solver.MarshalError(err)))
		os.Exit(1)
	}
}
