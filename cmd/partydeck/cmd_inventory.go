package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"partydeck/internal/config"
	"partydeck/internal/deck"
	"partydeck/internal/host"
	"partydeck/internal/types"
)

var equipIndex int

// openDeck loads config for the workspace, assembles the deck, scans, and
// restores the checkpointed equipment. Callers must Close the deck.
func openDeck() (*deck.Deck, error) {
	cfg, err := config.Load(config.Path(workspace))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Workspace = workspace
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d, err := deck.New(*cfg, host.NewCommandHost())
	if err != nil {
		return nil, err
	}

	res, rescanWarnings := d.Rescan(context.Background())
	for _, e := range res.Errors {
		fmt.Printf("⚠ scan: %s\n", e)
	}
	for _, w := range rescanWarnings {
		fmt.Printf("⚠ %s\n", w)
	}

	warnings, err := d.RestoreEquipment()
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("restore equipment: %w", err)
	}
	for _, w := range warnings {
		fmt.Printf("⚠ %s\n", w)
	}
	return d, nil
}

func runScan(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	items := d.Capabilities()
	fmt.Printf("Found %d capabilities in %s\n\n", len(items), workspace)

	var lastKind types.Kind
	for _, c := range items {
		if c.Kind != lastKind {
			fmt.Printf("%s (%s, limit %d)\n", c.Kind, types.SlotFor(c.Kind), types.SlotLimit(types.SlotFor(c.Kind)))
			lastKind = c.Kind
		}
		mark := " "
		if c.Enabled {
			mark = "*"
		}
		fmt.Printf("  %s %-40s %6d  %s\n", mark, c.ID, c.Weight, c.Name)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	w, err := d.Watch(func(res types.ScanResult, warnings []string) {
		fmt.Printf("rescan: %d capabilities (%s)\n", len(res.Items), res.Duration.Round(time.Millisecond))
		for _, e := range res.Errors {
			fmt.Printf("⚠ scan: %s\n", e)
		}
		for _, warn := range warnings {
			fmt.Printf("⚠ %s\n", warn)
		}
	})
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Printf("Watching %s for capability changes. Ctrl-C to stop.\n", workspace)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}

func runEquip(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	id := args[0]
	c, err := d.Capability(id)
	if err != nil {
		return err
	}

	slot := types.SlotRef{Category: types.SlotFor(c.Kind), Index: equipIndex}
	res, err := d.Equip(id, slot)
	if err != nil {
		return err
	}

	if !res.Committed {
		p := res.Pending
		fmt.Printf("Deferred: equipping %s would push usage to %d (%.1f%% of budget).\n",
			id, p.ProjectedUsage, p.ProjectedPercentage*100)
		fmt.Println("Run 'partydeck confirm' to equip anyway, or 'partydeck cancel' to discard.")
		return nil
	}

	printStats(res.Stats)
	for _, w := range res.Warnings {
		fmt.Printf("⚠ %s\n", w)
	}
	return nil
}

func runUnequip(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	snap, err := d.ReleaseCapability(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Released %s.\n", args[0])
	printStats(snap)
	return nil
}

func runConfirm(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.ConfirmPending()
	if err != nil {
		return err
	}
	if !res.Committed {
		fmt.Println("No pending allocation to confirm.")
		return nil
	}
	fmt.Println("Committed.")
	printStats(res.Stats)
	for _, w := range res.Warnings {
		fmt.Printf("⚠ %s\n", w)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	d.CancelPending()
	fmt.Println("Pending allocation discarded.")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	printStats(d.Stats())

	eq := d.Equipped()
	fmt.Println()
	printSlot("helm", eq.Helm)
	printSlot("mainhand", eq.Mainhand)
	printSlot("offhand", eq.Offhand)
	printSlots("hooks", eq.Hooks)
	printSlots("rings", eq.Rings)
	printSlots("spellbook", eq.Spellbook)
	printSlots("companions", eq.Companions)
	printSlots("trinkets", eq.Trinkets)

	if p := d.Pending(); p != nil {
		fmt.Printf("\nPending: %s -> %s (%d -> %d, %.1f%%)\n",
			p.Capability.ID, p.TargetSlot.Category,
			p.CurrentUsage, p.ProjectedUsage, p.ProjectedPercentage*100)
	}
	return nil
}

func printStats(s types.BudgetSnapshot) {
	bar := usageBar(s.LoadPercentage, 30)
	fmt.Printf("[%s] %d / %d (%.1f%%) — %s\n",
		bar, s.Consumed, s.Total, s.LoadPercentage*100, s.Status)
}

func usageBar(pct float64, width int) string {
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func printSlot(label string, c *types.Capability) {
	if c == nil {
		fmt.Printf("  %-10s —\n", label)
		return
	}
	fmt.Printf("  %-10s %s (%d)\n", label, c.ID, c.Weight)
}

func printSlots(label string, caps []*types.Capability) {
	if len(caps) == 0 {
		fmt.Printf("  %-10s —\n", label)
		return
	}
	for i, c := range caps {
		tag := ""
		if i == 0 {
			tag = label
		}
		fmt.Printf("  %-10s %s (%d)\n", tag, c.ID, c.Weight)
	}
}
