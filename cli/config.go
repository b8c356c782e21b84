package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/splitfed"
	"github.com/absmach/splitfed/pkg/transport"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

const filePermission = 0o644

var (
	errFileExists = errors.New("config file already exists, use --force to overwrite")
	errNotANumber = errors.New("must be a positive number")

	configFile  = "cluster.toml"
	interactive = false
	force       = false
	peerCount   = 4
)

// NewConfigCmd manages cluster config files.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [init|validate]",
		Short: "Cluster configuration",
		Long:  `Create and validate cluster configuration files.`,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create config",
		Long:  `Write a cluster config with generated peer names.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			if _, err := os.Stat(configFile); err == nil && !force {
				logErrorCmd(*cmd, errFileExists)

				return
			}

			cfg := splitfed.DefaultConfig()
			if interactive {
				if err := configForm(&cfg).Run(); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}
			cfg.Peers = generatePeers(peerCount, cfg.Training.ModelLen-1)

			if err := cfg.Validate(); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if err := cfg.Save(configFile); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			if err := os.Chmod(configFile, filePermission); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd, fmt.Sprintf("Wrote %s with %d peers", configFile, len(cfg.Peers)))
		},
	}
	initCmd.Flags().BoolVarP(&interactive, "interactive", "i", interactive, "Prompt for cluster settings")
	initCmd.Flags().BoolVarP(&force, "force", "f", force, "Overwrite an existing file")
	initCmd.Flags().IntVarP(&peerCount, "peers", "k", peerCount, "Number of peers")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		Long:  `Load a cluster config and print it when valid.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg, err := splitfed.LoadConfig(configFile)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, cfg)
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "file", "c", configFile, "Cluster config file")
	cmd.AddCommand(initCmd, validateCmd)

	return cmd
}

// generatePeers names count peers, each splitting at splitLayer.
func generatePeers(count, splitLayer int) []splitfed.PeerConfig {
	gen := namegenerator.NewGenerator()
	seen := make(map[string]struct{}, count)

	peers := make([]splitfed.PeerConfig, 0, count)
	for len(peers) < count {
		id := gen.Generate()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		peers = append(peers, splitfed.PeerConfig{ID: id, SplitLayer: splitLayer})
	}

	return peers
}

func configForm(cfg *splitfed.ClusterConfig) *huh.Form {
	rounds := strconv.Itoa(cfg.Training.Rounds)
	peers := strconv.Itoa(peerCount)

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Cluster name").
				Value(&cfg.Cluster.Name),
			huh.NewSelect[string]().
				Title("Transport").
				Options(
					huh.NewOption("TCP stream", transport.Stream),
					huh.NewOption("UDP datagram", transport.Datagram),
					huh.NewOption("Message broker", transport.Broker),
				).
				Value(&cfg.Cluster.Transport),
			huh.NewInput().
				Title("Coordinator address").
				Value(&cfg.Cluster.Address),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Rounds").
				Value(&rounds).
				Validate(positiveInt(&cfg.Training.Rounds)),
			huh.NewInput().
				Title("Peers").
				Value(&peers).
				Validate(positiveInt(&peerCount)),
			huh.NewInput().
				Title("Broker URL").
				Value(&cfg.Broker.URL),
		),
	)
}

// positiveInt parses s into dst when it holds a positive integer.
func positiveInt(dst *int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return errNotANumber
		}
		*dst = n

		return nil
	}
}
