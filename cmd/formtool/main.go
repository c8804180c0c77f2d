// Package main is a command-line tool for form authors.
//
// It can convert YAML forms to JSON, report on a form's rules and
// references, draw a form's flow and dependencies, render a form's
// documentation as HTML, and walk a form with a set of answers.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/Comcast/formflow/core"
	"github.com/Comcast/formflow/service"
	"github.com/Comcast/formflow/tools"

	"github.com/jsccast/yaml"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("error %s", err)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "formtool",
		Short:         "Tools for form authors",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		yamlToJSONCmd(),
		analyzeCmd(),
		mermaidCmd(),
		dotCmd(),
		htmlCmd(),
		walkCmd(),
	)

	return root
}

// readForm reads, validates, and compiles a form.  The name "-"
// means stdin (as YAML).
func readForm(cmd *cobra.Command, filename string) (*core.Form, error) {
	var (
		bs  []byte
		err error
	)
	if filename == "-" {
		bs, err = io.ReadAll(cmd.InOrStdin())
		filename = "stdin.yaml"
	} else {
		bs, err = os.ReadFile(filename)
	}
	if err != nil {
		return nil, err
	}
	return service.ParseForm(filename, bs)
}

// readFormLoosely reads a form without validating it, so that a
// broken form can still be analyzed.
func readFormLoosely(filename string) (*core.Form, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var f core.Form
	if filepath.Ext(filename) == ".json" {
		err = json.Unmarshal(bs, &f)
	} else {
		err = yaml.Unmarshal(bs, &f)
	}
	return &f, err
}

func yamlToJSONCmd() *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "yamltojson",
		Short: "Read a YAML form from stdin and write it as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bs, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			var f core.Form
			if err = yaml.Unmarshal(bs, &f); err != nil {
				return err
			}
			if pretty {
				bs, err = json.MarshalIndent(&f, "", "  ")
			} else {
				bs, err = json.Marshal(&f)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", bs)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "indent the JSON")
	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze FORM",
		Short: "Report on a form's questions, rules, and references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readFormLoosely(args[0])
			if err != nil {
				return err
			}
			a, err := tools.Analyze(f)
			if err != nil {
				return err
			}
			js, err := json.MarshalIndent(map[string]interface{}{
				"analysis": a,
				"warnings": a.Warnings(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", js)
			if 0 < len(a.Errors) {
				return fmt.Errorf("%s has %d errors", args[0], len(a.Errors))
			}
			return nil
		},
	}
}

// nopCloser lets a command write a graph to its output without
// closing it.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}

func mermaidCmd() *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "mermaid FORM",
		Short: "Write a Mermaid graph of a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readForm(cmd, args[0])
			if err != nil {
				return err
			}
			var opts *tools.MermaidOpts
			if plain {
				opts = &tools.MermaidOpts{}
			}
			return tools.Mermaid(f, nopCloser{cmd.OutOrStdout()}, opts)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "no colors or condition labels")
	return cmd
}

func dotCmd() *cobra.Command {
	var (
		png           string
		current, next string
	)
	cmd := &cobra.Command{
		Use:   "dot FORM",
		Short: "Write a Graphviz graph of a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readForm(cmd, args[0])
			if err != nil {
				return err
			}
			if png != "" {
				filename, err := tools.PNG(f, png, current, next)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", filename)
				return nil
			}
			return tools.Dot(f, nopCloser{cmd.OutOrStdout()}, current, next)
		},
	}
	cmd.Flags().StringVar(&png, "png", "", "basename for .dot and .png files (requires Graphviz)")
	cmd.Flags().StringVar(&current, "from", "", "highlight a step from this question")
	cmd.Flags().StringVar(&next, "to", "", "highlight a step to this question")
	return cmd
}

func htmlCmd() *cobra.Command {
	var (
		css         []string
		includeForm bool
	)
	cmd := &cobra.Command{
		Use:   "html FORM",
		Short: "Write an HTML page documenting a form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readForm(cmd, args[0])
			if err != nil {
				return err
			}
			return tools.RenderFormPage(f, cmd.OutOrStdout(), css, includeForm)
		},
	}
	cmd.Flags().StringSliceVar(&css, "css", nil, "stylesheet URLs")
	cmd.Flags().BoolVar(&includeForm, "include-form", false, "embed the form as JavaScript")
	return cmd
}
