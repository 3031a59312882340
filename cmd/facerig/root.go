package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-facerig/internal/config"
	"github.com/teslashibe/go-facerig/internal/log"
	"github.com/teslashibe/go-facerig/pkg/debug"
)

// cli carries state shared by the subcommands.
type cli struct {
	v          *viper.Viper
	configFile string
	settings   config.Settings
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.NewViper()}

	root := &cobra.Command{
		Use:           "facerig",
		Short:         "Webcam-driven avatar face rig",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configFile, "config", "c", "", "config file (default: ./facerig.yaml if present)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Bool("debug", false, "enable verbose per-frame logging")
	pf.String("rig", "", "rig YAML (default: embedded ARKit rig)")
	pf.String("mesh", "", "mesh manifest JSON (default: one morph per expression channel)")
	bind(c.v, pf, map[string]string{
		"log_level":     "log-level",
		"debug":         "debug",
		"rig.morph_map": "rig",
		"rig.mesh":      "mesh",
	})

	root.AddCommand(newRunCmd(c), newCheckRigCmd(c))
	return root
}

// load reads settings once flags are parsed and configures logging.
func (c *cli) load() error {
	s, err := config.Load(c.v, c.configFile)
	if err != nil {
		return err
	}
	c.settings = s

	log.Init(s.LogLevel)
	debug.Enabled = s.Debug || s.LogLevel == "debug"
	debug.Frames = s.Debug
	return nil
}
