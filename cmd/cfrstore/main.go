// Command cfrstore inspects and maintains the durable tier of a CFR node
// record store, and benchmarks a TieredStore in front of it.
package main

import (
	"flag"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/timpalpant/cfrstore"
	_ "github.com/timpalpant/cfrstore/bdbstore"
	_ "github.com/timpalpant/cfrstore/ldbstore"
)

var (
	configPath string
	storePath  string
	engineName string

	rootCmd = &cobra.Command{
		Use:          "cfrstore",
		Short:        "Inspect and maintain CFR node record stores",
		SilenceUsage: true,
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "YAML file of store params")
	flags.StringVar(&storePath, "path", "", "Location of the durable tier (overrides --config)")
	flags.StringVar(&engineName, "engine", "", "Durable tier engine (overrides --config)")
	flags.AddGoFlagSet(flag.CommandLine)
}

func main() {
	// Silences glog's complaint about logging before flag.Parse;
	// the flag values themselves are set by cobra.
	flag.CommandLine.Parse(nil)
	defer glog.Flush()

	if err := rootCmd.Execute(); err != nil {
		glog.Flush()
		glog.Exit(err)
	}
}

// loadParams combines --config with the --path and --engine overrides.
func loadParams() (cfrstore.Params, error) {
	params := cfrstore.DefaultParams("")
	if configPath != "" {
		var err error
		if params, err = cfrstore.LoadParams(configPath); err != nil {
			return params, err
		}
	}

	if storePath != "" {
		params.Path = storePath
	}

	if engineName != "" {
		params.Engine = engineName
	} else if params.Engine == "" {
		params.Engine = cfrstore.DefaultEngine
	}

	if params.Path == "" {
		return params, errors.New("no store path: set --path or path in --config")
	}

	return params, nil
}

// openDurable opens the durable tier named by the flags.
func openDurable() (cfrstore.DurableStore, error) {
	params, err := loadParams()
	if err != nil {
		return nil, err
	}

	glog.V(1).Infof("Opening %s store at %s", params.Engine, params.Path)
	return cfrstore.OpenEngine(params.Engine, params.Path)
}
