package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"flatcrawl/internal/config"
	"flatcrawl/internal/fbfmt"
	"flatcrawl/internal/logging"
	"flatcrawl/internal/node"
	"flatcrawl/internal/output"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfg config.Config
	log *logrus.Logger
	out io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configFile string

	root := &cobra.Command{
		Use:   "flatcrawl",
		Short: "flatcrawl - schema-less FlatBuffers explorer",
		Long: `flatcrawl decodes FlatBuffers binaries without a schema. Fields are read
by index with a caller-chosen type, classes aggregate what every instance of a
table reveals, and field inference suggests plausible types for the rest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v := config.New()
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			cfg.Log.Output = cmd.ErrOrStderr()
			log, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			a.cfg, a.log, a.out = cfg, log, cmd.OutOrStdout()
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		a.infoCmd(),
		a.readCmd(),
		a.analyzeCmd(),
		a.unionCmd(),
		a.regionsCmd(),
		a.schemaCmd(),
		a.graphCmd(),
	)
	return root
}

// open reads path and decodes its root table.
func (a *app) open(path string) (*node.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	s, err := node.Open(fbfmt.NewBuffer(data), a.cfg.Options(), a.log.WithField("file", path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return s, nil
}

// openAt opens path and navigates every path expression in order, so the
// session has read (and classes have learned) everything along them.
func (a *app) openAt(path string, exprs []string) (*node.Session, []node.Node, error) {
	s, err := a.open(path)
	if err != nil {
		return nil, nil, err
	}
	var nodes []node.Node
	for _, expr := range exprs {
		n, err := Navigate(s.Root(), expr)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, n)
	}
	return s, nodes, nil
}

func (a *app) write(v any) error {
	return output.Write(a.out, a.cfg.Output, v)
}
