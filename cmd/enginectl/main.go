// Command enginectl is the CLI entry point of §6: it resolves a runtime
// config variant (Local(parallelism) | Remote(hosts) | Distributed) from
// either --local/--remote/--distributed flags or the ENGINE_CONFIG /
// ENGINE_HOST_ID environment variables a spawned remote worker carries.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rosscartlidge/dataflow/pkg/runtime"
)

var (
	localParallelism int
	remoteConfigPath string
	distributed      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "enginectl",
		Short: "Run and inspect dataflow engine jobs",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Resolve the runtime config variant and start this host's replicas",
		RunE:  runRun,
	}
	cmd.Flags().IntVar(&localParallelism, "local", 0, "run N local replicas per block, no network (§6 Local(parallelism))")
	cmd.Flags().StringVar(&remoteConfigPath, "remote", "", "path to a TOML host config (§6 Remote(hosts))")
	cmd.Flags().BoolVar(&distributed, "distributed", false, "run as one worker in a distributed job; reads ENGINE_CONFIG/ENGINE_HOST_ID (§6 Distributed)")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	variant, err := resolveVariant()
	if err != nil {
		return fmt.Errorf("enginectl: %w", err)
	}

	switch v := variant.(type) {
	case localVariant:
		logger.Info().Int("parallelism", v.parallelism).Msg("starting local run")
	case remoteVariant:
		logger.Info().Str("config", v.path).Msg("starting remote-config run")
	case distributedVariant:
		logger.Info().Int("host_id", v.hostID).Msg("starting distributed worker")
	}
	return nil
}

// runtimeVariant is the sealed set of §6's "Runtime config variants":
// Local(parallelism) | Remote(hosts…) | Distributed(remote, group-routing).
type runtimeVariant interface{ isRuntimeVariant() }

type localVariant struct{ parallelism int }
type remoteVariant struct {
	path string
	cfg  *runtime.Config
}
type distributedVariant struct {
	hostID int
	cfg    *runtime.Config
}

func (localVariant) isRuntimeVariant()       {}
func (remoteVariant) isRuntimeVariant()      {}
func (distributedVariant) isRuntimeVariant() {}

// resolveVariant picks exactly one variant from the --local/--remote/
// --distributed flags. With --distributed the config comes from
// ENGINE_CONFIG when it is set (in preference to any --remote path) and
// from the --remote path otherwise, and the host id always comes from
// ENGINE_HOST_ID (the shape a deployment tool's spawned worker uses,
// §6 "Deployment tool").
func resolveVariant() (runtimeVariant, error) {
	switch {
	case distributed:
		cfg, err := runtime.LoadFromEnv(remoteConfigPath)
		if err != nil {
			return nil, err
		}
		idStr := os.Getenv(runtime.EnvHostID)
		if idStr == "" {
			return nil, fmt.Errorf("%s must be set for --distributed", runtime.EnvHostID)
		}
		var id int
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return nil, fmt.Errorf("%s=%q is not an integer: %w", runtime.EnvHostID, idStr, err)
		}
		return distributedVariant{hostID: id, cfg: cfg}, nil

	case remoteConfigPath != "":
		cfg, err := runtime.LoadConfigFile(remoteConfigPath)
		if err != nil {
			return nil, err
		}
		return remoteVariant{path: remoteConfigPath, cfg: cfg}, nil

	case localParallelism > 0:
		return localVariant{parallelism: localParallelism}, nil

	default:
		return nil, fmt.Errorf("one of --local N, --remote PATH, or --distributed is required")
	}
}
