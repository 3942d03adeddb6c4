package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	loadoutIcon        string
	loadoutDescription string
)

func runLoadoutSave(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	l, err := d.SaveLoadout(args[0], loadoutIcon, loadoutDescription)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s %s (%s) — %d units across %d categories.\n",
		l.Icon, l.Name, l.ID, l.TotalWeight, len(l.Assignments))
	return nil
}

func runLoadoutApply(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	warnings, err := d.ApplyLoadout(args[0])
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Printf("⚠ %s\n", w)
	}
	printStats(d.Stats())
	return nil
}

func runLoadoutList(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	loadouts, err := d.Loadouts()
	if err != nil {
		return err
	}
	if len(loadouts) == 0 {
		fmt.Println("No loadouts saved yet.")
		return nil
	}
	for _, l := range loadouts {
		tag := ""
		if l.IsPreset() {
			tag = " (preset)"
		}
		fmt.Printf("%s %-20s %-28s %6d%s\n", l.Icon, l.Name, l.ID, l.TotalWeight, tag)
		if l.Description != "" {
			fmt.Printf("   %s\n", l.Description)
		}
	}
	return nil
}

func runLoadoutDelete(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.DeleteLoadout(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s.\n", args[0])
	return nil
}
