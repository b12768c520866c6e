// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/emausjovem/comunidade/backend/models"
)

func init() {
	groupsCmd.Flags().StringP("query", "q", "", "search by name or description")
	groupsCreateCmd.Flags().String("description", "", "group description")
	groupsCreateCmd.Flags().String("icon", "", "icon tag (default fa-users)")
	groupsCreateCmd.Flags().Bool("private", false, "only granted members can see the group")

	groupsCmd.AddCommand(groupsCreateCmd, groupsDeleteCmd)
	rootCmd.AddCommand(groupsCmd, membersCmd)
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List the groups you can see",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		query, _ := cmd.Flags().GetString("query")
		groups, err := c.SearchGroups(cmd.Context(), query)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "REF\tNAME\tVISIBILITY\tDESCRIPTION")
		for _, g := range groups {
			name := g.Name
			if g.IsDefault {
				name += " *"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.Ref(), name, g.Visibility, g.Description)
		}
		return tw.Flush()
	},
}

var groupsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group (administrators only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		description, _ := cmd.Flags().GetString("description")
		icon, _ := cmd.Flags().GetString("icon")
		private, _ := cmd.Flags().GetBool("private")

		in := models.GroupInput{
			Name:        args[0],
			Description: description,
			Icon:        icon,
			Visibility:  models.VisibilityPublic,
		}
		if private {
			in.Visibility = models.VisibilityPrivate
		}
		g, err := c.CreateGroup(cmd.Context(), in)
		if err != nil {
			return err
		}
		fmt.Printf("created %s (%s)\n", g.Ref(), g.Name)
		return nil
	},
}

var groupsDeleteCmd = &cobra.Command{
	Use:   "delete <group-id>",
	Short: "Delete a group and its history (administrators only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid group id %q", args[0])
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.DeleteGroup(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("deleted group:%d\n", id)
		return nil
	},
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List members",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		members, err := c.ListMembers(cmd.Context())
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tROLE")
		for _, m := range members {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Name, m.Role)
		}
		return tw.Flush()
	},
}
