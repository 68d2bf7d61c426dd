package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fyrsmithlabs/qaflow/internal/container"
	"github.com/fyrsmithlabs/qaflow/internal/specdoc"
	"github.com/spf13/cobra"
)

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes <spec-file>",
		Short: "Print the routes found in a functional specification document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			routes, err := specdoc.ParseFile(args[0])
			if err != nil {
				return err
			}
			if len(routes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no routes found")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPATH")
			for _, r := range routes {
				fmt.Fprintf(tw, "%s\t%s\n", r.Name, r.Path)
			}
			return tw.Flush()
		},
	}
}

func newCleanRequirementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean-requirements <requirements-file>",
		Short: "Strip version specifiers from a pip requirements file in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.CleanRequirements(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleaned %s\n", args[0])
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "qaflow by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
