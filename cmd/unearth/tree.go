// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/unearth-project/unearth/report"
)

func runTree(args []string) error {
	flagSet := pflag.NewFlagSet("unearth tree", pflag.ContinueOnError)
	noColor := flagSet.Bool("no-color", false, "disable styled output")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) != 1 {
		return errors.New("tree requires exactly one JSON report file")
	}

	file, err := os.Open(rest[0])
	if err != nil {
		return err
	}
	defer file.Close()
	doc, err := report.ReadJSON(file)
	if err != nil {
		return err
	}

	styled := !*noColor && term.IsTerminal(int(os.Stdout.Fd()))
	renderDocument(os.Stdout, doc, newTreeStyles(styled))
	return nil
}

// treeStyles holds the render styles. The zero value renders plain
// text, so disabling color is just using the zero styles.
type treeStyles struct {
	format lipgloss.Style
	dim    lipgloss.Style
	label  lipgloss.Style
	warn   lipgloss.Style
}

func newTreeStyles(styled bool) treeStyles {
	if !styled {
		return treeStyles{}
	}
	return treeStyles{
		format: lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		label:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
}

func renderDocument(w io.Writer, doc *report.Document, s treeStyles) {
	fmt.Fprintf(w, "%s  %s\n", doc.Tool, s.dim.Render(doc.ScannedAt))
	fmt.Fprintf(w, "input %s  %s\n",
		s.dim.Render(doc.RootHash),
		formatSize(doc.RootSize))
	if doc.Incomplete {
		fmt.Fprintln(w, s.warn.Render("incomplete: the scan was cancelled before finishing"))
	}
	fmt.Fprintln(w)

	if doc.Root != nil {
		s.renderNode(w, doc.Root, "", true, true)
	}

	if len(doc.Poisoned) > 0 {
		fmt.Fprintf(w, "\n%s %s\n",
			s.warn.Render("poisoned parsers:"),
			strings.Join(doc.Poisoned, ", "))
	}
	for _, failure := range doc.Failures {
		location := failure.Path
		if location == "" {
			location = "/"
		}
		fmt.Fprintf(w, "%s %s at %s: %s\n",
			s.warn.Render("fault:"), failure.Parser, location, failure.Detail)
	}
}

func (s treeStyles) renderNode(w io.Writer, n *report.Node, prefix string, last, root bool) {
	connector, childPrefix := prefix+"├── ", prefix+"│   "
	if last {
		connector, childPrefix = prefix+"└── ", prefix+"    "
	}
	if root {
		connector, childPrefix = "", ""
	}

	name := n.PathHint
	if name == "" {
		name = "/"
	}
	line := connector + name
	if n.Format != "" {
		line += "  " + s.format.Render(n.Format)
	}
	line += "  " + s.dim.Render(fmt.Sprintf("@0x%x +%s", n.Offset, formatSize(n.Length)))
	if extra := extraLabels(n); len(extra) > 0 {
		line += "  " + s.label.Render(strings.Join(extra, ","))
	}
	if n.Incomplete {
		line += "  " + s.warn.Render("(incomplete)")
	}
	fmt.Fprintln(w, line)

	for i, child := range n.Children {
		s.renderNode(w, child, childPrefix, i == len(n.Children)-1, false)
	}
}

// extraLabels drops the label that merely repeats the format name;
// the format is already printed in its own column.
func extraLabels(n *report.Node) []string {
	var extra []string
	for _, label := range n.Labels {
		if label != n.Format {
			extra = append(extra, label)
		}
	}
	return extra
}

func formatSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
