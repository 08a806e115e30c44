// Command entitycache drives a write-back entity cache with a configurable workload against one of the supported
// storages and reports the persist metrics afterwards.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/dig"

	"github.com/iotaledger/entitycache/configuration"
	"github.com/iotaledger/entitycache/dbcache"
	"github.com/iotaledger/entitycache/logger"
	"github.com/iotaledger/entitycache/persist"
)

const (
	envPrefix      = "ENTITYCACHE"
	configFlagName = "config"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	config := configuration.New()
	params := &parameters{}

	root := &cobra.Command{
		Use:          "entitycache",
		Short:        "write-back entity cache workload runner",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP(configFlagName, "c", "", "the JSON, YAML or TOML file to load the configuration from")

	flags := root.PersistentFlags()
	config.BindParameters(flags, "logger", &params.Logger)
	config.BindParameters(flags, "locks", &params.Locks)
	config.BindParameters(flags, "persist", &params.Persist)
	config.BindParameters(flags, "storage", &params.Storage)
	config.BindParameters(flags, "cache", &params.Cache)
	config.BindParameters(flags, "workload", &params.Workload)

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "run the workload and flush all pending writes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfiguration(cmd, config); err != nil {
				return err
			}

			return run(cmd.Context(), cmd.OutOrStdout(), params)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "config <file>",
		Short: "write the effective configuration to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfiguration(cmd, config); err != nil {
				return err
			}

			return config.StoreFile(args[0])
		},
	})

	return root
}

// loadConfiguration merges the config file, the command line and the environment, in that order of precedence from
// lowest to highest, and writes the result into the bound parameters.
func loadConfiguration(cmd *cobra.Command, config *configuration.Configuration) error {
	configFile, err := cmd.Flags().GetString(configFlagName)
	if err != nil {
		return err
	}

	if configFile != "" {
		if err := config.LoadFile(configFile); err != nil {
			return err
		}
	}

	if err := config.LoadFlagSet(cmd.Flags()); err != nil {
		return errors.Wrap(err, "failed to load flags")
	}

	if err := config.LoadEnvironmentVars(envPrefix); err != nil {
		return errors.Wrap(err, "failed to load environment variables")
	}

	return config.UpdateBoundParameters()
}

func run(ctx context.Context, out io.Writer, params *parameters) error {
	container, err := buildContainer(params)
	if err != nil {
		return err
	}

	err = container.Invoke(func(log *logger.Logger, registry *prometheus.Registry, scheduler persist.Scheduler, b *backend, accounts *dbcache.Service[Account]) (err error) {
		defer func() {
			err = errors.CombineErrors(err, errors.Wrapf(b.close(), "failed to close %s", b.name))
		}()

		log.Infof("running workload against %s with %s persistence", b.name, params.Persist.Strategy)

		ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		runErr := newWorkload(params.Workload, log.Named("workload"), accounts).Run(ctx)

		unpersisted := scheduler.LogUnpersistedEntities()
		shutdownErr := scheduler.Shutdown()
		log.Infof("%s, %d entities were not persisted yet at shutdown", accounts.Info(), unpersisted)

		if err := printMetrics(out, registry); err != nil {
			log.Warnf("failed to print metrics: %s", err)
		}

		return errors.CombineErrors(runErr, shutdownErr)
	})

	// dig wraps constructor failures in its own error types
	return dig.RootCause(err)
}

// printMetrics writes every counter and gauge of the registry as "name{labels} value".
func printMetrics(out io.Writer, registry prometheus.Gatherer) error {
	families, err := registry.Gather()
	if err != nil {
		return errors.Wrap(err, "failed to gather metrics")
	}

	lines := make([]string, 0)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := make([]string, 0, len(metric.GetLabel()))
			for _, label := range metric.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", label.GetName(), label.GetValue()))
			}

			value := metric.GetCounter().GetValue() + metric.GetGauge().GetValue()
			lines = append(lines, fmt.Sprintf("%s{%s} %g", family.GetName(), strings.Join(labels, ","), value))
		}
	}
	sort.Strings(lines)

	_, err = fmt.Fprintln(out, strings.Join(lines, "\n"))

	return err
}
