package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func runPersonaList(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	personas := d.Personas()
	if len(personas) == 0 {
		fmt.Println("No personas defined.")
		return nil
	}
	for _, p := range personas {
		scope := "project"
		if p.Global {
			scope = "global"
		}
		name := p.Config.Name
		if name == "" {
			name = p.ID
		}
		fmt.Printf("%-24s %-8s %s\n", p.ID, scope, name)
		if p.Config.Description != "" {
			fmt.Printf("   %s\n", p.Config.Description)
		}
	}
	return nil
}

func runPersonaShow(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	p, err := d.FindPersona(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n", p.ID, p.FilePath)
	if p.Config.Model != "" {
		fmt.Printf("  model: %s\n", p.Config.Model)
	}
	if len(p.Config.Tools) > 0 {
		fmt.Printf("  tools: %v\n", p.Config.Tools)
	}
	if len(p.Config.Skills) > 0 {
		fmt.Printf("  skills: %v\n", p.Config.Skills)
	}
	if p.Config.SystemPrompt != "" {
		fmt.Printf("\n%s\n", p.Config.SystemPrompt)
	}
	return nil
}

func runPartyPersona(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.AttachPersonaToSession(args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("Session %s now runs persona %s.\n", args[0], args[1])
	return nil
}
