package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"partydeck/internal/logging"
)

var (
	// Global flags
	verbose   bool
	workspace string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "partydeck",
	Short: "partydeck - capability and session control for AI coding assistants",
	Long: `partydeck manages what an AI coding assistant carries into its context
window: memory files, plugins, hooks, slash commands, skills, sub-agents,
and protocol servers, each weighing against a fixed token budget.

It also runs the session pool: up to five concurrent assistant sessions,
each with its own context health, loadout, and persona.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := filepath.Abs(workspace)
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
		workspace = ws

		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("category logging disabled", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// scanCmd discovers capabilities in the workspace
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the workspace and global directory for capabilities",
	Long: `Walks the workspace and the global assistant directory and lists every
capability found, grouped by kind, with its estimated token weight.

Broken sources (e.g. an unparseable settings file) are reported but do
not abort the scan.`,
	RunE: runScan,
}

// watchCmd rescans on filesystem changes
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch capability sources and rescan on change",
	Long: `Watches the workspace and global assistant directories and rescans
whenever a capability source changes. Bursts of file events are debounced
into a single rescan. Runs until interrupted.`,
	RunE: runWatch,
}

// equipCmd enables a capability in a slot
var equipCmd = &cobra.Command{
	Use:   "equip [capability-id]",
	Short: "Equip a capability into its slot",
	Long: `Enables a capability, charging its weight against the budget.

If the projected load would cross the overloaded boundary the equip is
deferred and printed as a pending allocation; confirm it with
'partydeck confirm' or discard it with 'partydeck cancel'.

Examples:
  partydeck equip memory-project
  partydeck equip hook-project-posttooluse-0 --index 2`,
	Args: cobra.ExactArgs(1),
	RunE: runEquip,
}

// unequipCmd releases a capability
var unequipCmd = &cobra.Command{
	Use:   "unequip [capability-id]",
	Short: "Release an equipped capability",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnequip,
}

// confirmCmd commits the pending allocation
var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Commit the pending over-threshold allocation",
	RunE:  runConfirm,
}

// cancelCmd discards the pending allocation
var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Discard the pending allocation without equipping",
	RunE:  runCancel,
}

// statsCmd shows the budget snapshot
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show budget usage and equipped capabilities",
	RunE:  runStats,
}

// loadoutCmd groups loadout operations
var loadoutCmd = &cobra.Command{
	Use:   "loadout",
	Short: "Save, apply, list, and delete loadouts",
}

var loadoutSaveCmd = &cobra.Command{
	Use:   "save [name]",
	Short: "Snapshot the current equipment as a named loadout",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoadoutSave,
}

var loadoutApplyCmd = &cobra.Command{
	Use:   "apply [loadout-id]",
	Short: "Replace the equipped set with a stored loadout",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoadoutApply,
}

var loadoutListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets and saved loadouts",
	RunE:  runLoadoutList,
}

var loadoutDeleteCmd = &cobra.Command{
	Use:   "delete [loadout-id]",
	Short: "Delete a saved loadout (presets cannot be deleted)",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoadoutDelete,
}

// partyCmd groups session pool operations
var partyCmd = &cobra.Command{
	Use:   "party",
	Short: "Manage the assistant session pool",
}

var partyAddCmd = &cobra.Command{
	Use:   "add [working-path]",
	Short: "Add a session bound to a working path",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPartyAdd,
}

var partyCloseCmd = &cobra.Command{
	Use:   "close [session-id]",
	Short: "Close a session (the last one cannot be closed)",
	Args:  cobra.ExactArgs(1),
	RunE:  runPartyClose,
}

var partyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions with status and context health",
	RunE:  runPartyList,
}

var partyFocusCmd = &cobra.Command{
	Use:   "focus [session-id]",
	Short: "Focus a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runPartyFocus,
}

var partyRecoverCmd = &cobra.Command{
	Use:   "recover [session-id]",
	Short: "Reset a critical session's context usage",
	Args:  cobra.ExactArgs(1),
	RunE:  runPartyRecover,
}

var partyPersonaCmd = &cobra.Command{
	Use:   "persona [session-id] [persona-id]",
	Short: "Attach a persona to a session",
	Args:  cobra.ExactArgs(2),
	RunE:  runPartyPersona,
}

// personaCmd groups persona file operations
var personaCmd = &cobra.Command{
	Use:   "persona",
	Short: "List and inspect sub-agent personas",
}

var personaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List personas from the project and global scopes",
	RunE:  runPersonaList,
}

var personaShowCmd = &cobra.Command{
	Use:   "show [persona-id]",
	Short: "Show one persona's configuration and prompt",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonaShow,
}

// usageCmd shows activity rollups
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show daily, weekly, and monthly activity",
	RunE:  runUsage,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "project workspace to manage")

	equipCmd.Flags().IntVar(&equipIndex, "index", 0, "slot index within the category (multi-slot categories)")
	loadoutSaveCmd.Flags().StringVar(&loadoutIcon, "icon", "🎴", "icon shown next to the loadout")
	loadoutSaveCmd.Flags().StringVar(&loadoutDescription, "description", "", "loadout description")
	usageCmd.Flags().IntVar(&usageDays, "days", 7, "days of daily breakdown to show")

	loadoutCmd.AddCommand(loadoutSaveCmd)
	loadoutCmd.AddCommand(loadoutApplyCmd)
	loadoutCmd.AddCommand(loadoutListCmd)
	loadoutCmd.AddCommand(loadoutDeleteCmd)

	partyCmd.AddCommand(partyAddCmd)
	partyCmd.AddCommand(partyCloseCmd)
	partyCmd.AddCommand(partyListCmd)
	partyCmd.AddCommand(partyFocusCmd)
	partyCmd.AddCommand(partyRecoverCmd)
	partyCmd.AddCommand(partyPersonaCmd)

	personaCmd.AddCommand(personaListCmd)
	personaCmd.AddCommand(personaShowCmd)

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(equipCmd)
	rootCmd.AddCommand(unequipCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(loadoutCmd)
	rootCmd.AddCommand(partyCmd)
	rootCmd.AddCommand(personaCmd)
	rootCmd.AddCommand(usageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
