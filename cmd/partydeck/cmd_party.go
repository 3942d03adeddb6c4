package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func runPartyAdd(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	path := workspace
	if len(args) == 1 {
		path = args[0]
	}
	s, err := d.AddSession(path)
	if err != nil {
		return err
	}
	fmt.Printf("Added session %s %s (%s)\n", s.Icon, s.Name, s.ID)
	return nil
}

func runPartyClose(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.CloseSession(args[0]); err != nil {
		return err
	}
	fmt.Printf("Closed session %s.\n", args[0])
	return nil
}

func runPartyList(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	sessions := d.Sessions()
	if len(sessions) == 0 {
		fmt.Println("No sessions in the party.")
		return nil
	}

	focused, _ := d.FocusedSession()
	for _, s := range sessions {
		mark := " "
		if s.ID == focused.ID {
			mark = "›"
		}
		task := s.CurrentTask
		if task == "" {
			task = "—"
		}
		fmt.Printf("%s %s %-16s %-12s %s\n", mark, s.Icon, s.Name, s.Status, task)
		if s.Workspace != nil {
			fmt.Printf("    %s · last active %s\n",
				s.Workspace.Path, s.LastActivity.Format(time.RFC822))
		}
	}
	return nil
}

func runPartyFocus(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.FocusSession(args[0]); err != nil {
		return err
	}
	fmt.Printf("Focused %s.\n", args[0])
	return nil
}

func runPartyRecover(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.RecoverSession(args[0]); err != nil {
		return err
	}
	fmt.Printf("Session %s marked idle again.\n", args[0])
	return nil
}
