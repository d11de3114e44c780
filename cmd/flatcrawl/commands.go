package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zboralski/lattice/render"

	"flatcrawl/internal/classgraph"
	"flatcrawl/internal/infer"
	"flatcrawl/internal/node"
	"flatcrawl/internal/output"
	schemarender "flatcrawl/internal/render"
	"flatcrawl/internal/union"
)

// info is the summary printed by the info command.
type info struct {
	Session string            `json:"session" yaml:"session"`
	File    string            `json:"file" yaml:"file"`
	Size    int               `json:"size" yaml:"size"`
	Magic   string            `json:"magic,omitempty" yaml:"magic,omitempty"`
	Root    output.NodeRecord `json:"root" yaml:"root"`
}

func (i info) Text() string {
	return fmt.Sprintf("File: %s (%d bytes)\nSession: %s\n%s", i.File, i.Size, i.Session, i.Root.Text())
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info FILE",
		Short: "Show the root table of a buffer",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := a.open(args[0])
			if err != nil {
				return err
			}
			return a.write(info{
				Session: s.ID.String(),
				File:    args[0],
				Size:    s.Buffer().Len(),
				Magic:   s.Root().Magic(),
				Root:    output.NewNodeRecord(s.Root()),
			})
		},
	}
}

// nodeRecords is the read command's result; JSONL writes one node per line.
type nodeRecords []output.NodeRecord

func (r nodeRecords) Text() string {
	parts := make([]string, len(r))
	for i, n := range r {
		parts[i] = n.Text()
	}
	return strings.Join(parts, "\n\n")
}

func (a *app) readCmd() *cobra.Command {
	var paths []string
	var names []string
	cmd := &cobra.Command{
		Use:   "read FILE",
		Short: "Navigate to nodes and print them",
		Long: `Navigate with --path expressions made of "/"-separated steps:

  2:u32        read field 2 as u32
  2:object[]   read field 2 as an object array
  3,4:union    read the union with discriminant field 3 and value field 4
  0            take entry 0 of the current array

Each --name labels the node of the --path at the same position.`,
		Example: "  flatcrawl read monsters.bin --path 2:object[]/0/1:string",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(names) > len(paths) {
				return fmt.Errorf("%d names for %d paths", len(names), len(paths))
			}
			_, nodes, err := a.openAt(args[0], withRoot(paths))
			if err != nil {
				return err
			}
			for i, name := range names {
				if err := setName(nodes[i], name); err != nil {
					return err
				}
			}
			recs := make(nodeRecords, len(nodes))
			for i, n := range nodes {
				recs[i] = output.NewNodeRecord(n)
			}
			return a.write(recs)
		},
	}
	cmd.Flags().StringArrayVarP(&paths, "path", "p", nil, "path expression (repeatable)")
	cmd.Flags().StringArrayVar(&names, "name", nil, "name for the node at the matching --path (repeatable)")
	return cmd
}

func withRoot(paths []string) []string {
	if len(paths) == 0 {
		return []string{""}
	}
	return paths
}

// setName names n through its parent table so the class learns it too.
func setName(n node.Node, name string) error {
	p := n.Parent()
	if p == nil {
		n.SetName(name)
		return nil
	}
	t, err := tableOf(p)
	if err != nil {
		n.SetName(name)
		return nil
	}
	return t.SetFieldName(t.GetChildIndex(n), name)
}

// tables returns the tables of a table-like node or an object array.
func tables(n node.Node) ([]*node.Table, error) {
	if arr, ok := n.(*node.ObjectArray); ok {
		return arr.Tables(), nil
	}
	t, err := tableOf(n)
	if err != nil {
		return nil, err
	}
	return []*node.Table{t}, nil
}

func (a *app) analyzeCmd() *cobra.Command {
	var path string
	var dump bool
	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Infer field sizes and types of a table or object array",
		Long: `Analyze every field of the table (or every entry of the object array) at
--path and list the sizes and types still plausible for each field.
--dump prints the recursive analysis tree instead, descending into fields
that look like objects or object arrays up to --max-depth.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, nodes, err := a.openAt(args[0], []string{path})
			if err != nil {
				return err
			}
			ts, err := tables(nodes[0])
			if err != nil {
				return err
			}
			res, err := infer.AnalyzeFields(a.cfg.Options(), ts...)
			if err != nil {
				return err
			}
			if dump {
				if len(ts) == 0 {
					return fmt.Errorf("nothing to dump: %s is empty", node.Path(nodes[0]))
				}
				return infer.Dump(a.out, a.cfg.Options(), ts[0], res)
			}
			return a.write(output.NewAnalysis(len(ts), res))
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "path to a table or object array (default root)")
	cmd.Flags().BoolVar(&dump, "dump", false, "print the recursive analysis tree")
	return cmd
}

func (a *app) unionCmd() *cobra.Command {
	var path string
	var arm int
	cmd := &cobra.Command{
		Use:   "union FILE",
		Short: "Group object array entries by union discriminant",
		Long: `Treat every entry of the object array at --path as a union holder with the
discriminant in field 0 and the arm table in field 1, and group entries by
discriminant. --arm analyzes the fields of one discriminant's arm tables.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, nodes, err := a.openAt(args[0], []string{path})
			if err != nil {
				return err
			}
			arr, ok := nodes[0].(*node.ObjectArray)
			if !ok {
				return fmt.Errorf("%s is %s, not an object array", node.Path(nodes[0]), nodes[0].Kind())
			}
			res, err := union.Analyze(arr)
			if err != nil {
				return err
			}
			if arm < 0 {
				return a.write(output.NewUnions(res))
			}
			if arm > 255 {
				return fmt.Errorf("--arm %d out of range", arm)
			}
			fields, err := res.AnalyzeArm(a.cfg.Options(), uint8(arm))
			if err != nil {
				return err
			}
			return a.write(output.NewAnalysis(len(res.Groups[uint8(arm)].Tables()), fields))
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "path to the object array")
	cmd.Flags().IntVar(&arm, "arm", -1, "analyze the arm tables of this discriminant")
	_ = cmd.MarkFlagRequired("path")
	return cmd
}

func (a *app) regionsCmd() *cobra.Command {
	var paths []string
	cmd := &cobra.Command{
		Use:   "regions FILE",
		Short: "Report which bytes are accounted for",
		Long: `Navigate every --path, then list the claimed byte ranges by category with
the remaining gaps reported as unknown data (or alignment padding, see
--padding-heuristic).`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, _, err := a.openAt(args[0], paths)
			if err != nil {
				return err
			}
			report := s.Tracker().Report(s.Buffer().Len(), a.cfg.ReportOptions())
			return a.write(output.NewRegions(s.Buffer().Len(), report))
		},
	}
	cmd.Flags().StringArrayVarP(&paths, "path", "p", nil, "path to read first (repeatable)")
	return cmd
}

func (a *app) schemaCmd() *cobra.Command {
	var paths []string
	cmd := &cobra.Command{
		Use:   "schema FILE",
		Short: "Print the classes learned while navigating",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, _, err := a.openAt(args[0], paths)
			if err != nil {
				return err
			}
			return a.write(output.NewSchema(s.Classes()))
		},
	}
	cmd.Flags().StringArrayVarP(&paths, "path", "p", nil, "path to read first (repeatable)")
	return cmd
}

func (a *app) graphCmd() *cobra.Command {
	var paths []string
	var kind, out, title string
	cmd := &cobra.Command{
		Use:   "graph FILE",
		Short: "Render the learned classes as Graphviz DOT",
		Long: `Navigate every --path, then render the classes:

  schema   one record per class with typed members (default)
  classes  bare parent/child class graph
  layout   per-class byte layout of the data table`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, _, err := a.openAt(args[0], paths)
			if err != nil {
				return err
			}
			if title == "" {
				title = args[0]
			}
			reg := s.Classes()
			var dot string
			switch kind {
			case "schema":
				dot = schemarender.SchemaDOT(reg, title, schemarender.NASA)
			case "classes":
				dot = render.DOT(classgraph.BuildClassGraph(reg), title)
			case "layout":
				dot = render.DOTCFG(classgraph.BuildLayout(reg), title)
			default:
				return fmt.Errorf("unknown graph kind %q (want schema, classes or layout)", kind)
			}
			if out == "" {
				_, err := fmt.Fprint(a.out, dot)
				return err
			}
			if err := os.WriteFile(out, []byte(dot), 0644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			a.log.WithField("file", out).Info("wrote graph")
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&paths, "path", "p", nil, "path to read first (repeatable)")
	cmd.Flags().StringVar(&kind, "kind", "schema", "graph kind: schema, classes, layout")
	cmd.Flags().StringVar(&out, "out", "", "write DOT to this file instead of stdout")
	cmd.Flags().StringVar(&title, "title", "", "graph title (default file name)")
	return cmd
}
