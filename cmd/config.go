package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/projecteru2/rf4watch/configbridge"
)

var configCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read, edit, validate and back up the script's configuration files",
	}
	pruneCmd := &cobra.Command{
		Use:   "prune NAME",
		Short: "Delete all but the newest backups of a configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigPrune,
	}
	pruneCmd.Flags().Int("keep", 0, "backups to keep (default: backup_retention_count)")
	setCmd := &cobra.Command{
		Use:   "set NAME KEY VALUE",
		Short: "Set a dotted key; VALUE is parsed as a YAML scalar",
		Args:  cobra.ExactArgs(3), //nolint:mnd
		RunE:  runConfigSet,
	}
	setCmd.Flags().Bool("no-backup", false, "skip the backup of the current file")

	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List managed configuration names",
			Args:    cobra.NoArgs,
			RunE:    runConfigList,
		},
		&cobra.Command{
			Use:   "get NAME [KEY]",
			Short: "Print a configuration, or one dotted key of it, as YAML",
			Args:  cobra.RangeArgs(1, 2), //nolint:mnd
			RunE:  runConfigGet,
		},
		setCmd,
		&cobra.Command{
			Use:   "validate NAME",
			Short: "Check a configuration for required keys and empty values",
			Args:  cobra.ExactArgs(1),
			RunE:  runConfigValidate,
		},
		&cobra.Command{
			Use:   "backups NAME",
			Short: "List backups of a configuration, newest first",
			Args:  cobra.ExactArgs(1),
			RunE:  runConfigBackups,
		},
		&cobra.Command{
			Use:   "restore NAME BACKUP_ID",
			Short: "Restore a configuration from a backup",
			Args:  cobra.ExactArgs(2), //nolint:mnd
			RunE:  runConfigRestore,
		},
		pruneCmd,
	)
	return cmd
}()

func runConfigList(_ *cobra.Command, _ []string) error {
	l, bridge, err := initBridge()
	if err != nil {
		return err
	}
	defer shutdown(l)
	names, err := bridge.ListAvailable()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Printf("No configurations in %s.\n", bridge.Dir())
		return nil
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	l, bridge, err := initBridge()
	if err != nil {
		return err
	}
	defer shutdown(l)
	data, err := bridge.Read(ctx, args[0], false)
	if err != nil {
		return err
	}
	var v any = data
	if len(args) == 2 { //nolint:mnd
		var ok bool
		if v, ok = lookupKey(data, args[1]); !ok {
			return fmt.Errorf("key %q not found in %s", args[1], args[0])
		}
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)  //nolint:mnd
	defer enc.Close() //nolint:errcheck
	return enc.Encode(v)
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	l, bridge, err := initBridge()
	if err != nil {
		return err
	}
	defer shutdown(l)
	name, key, raw := args[0], args[1], args[2]

	data, err := bridge.Read(ctx, name, false)
	if err != nil {
		return err
	}
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return fmt.Errorf("parse value %q: %w", raw, err)
	}
	if err := setKey(data, key, value); err != nil {
		return err
	}
	if v := bridge.Validate(name, data); !v.Valid {
		return fmt.Errorf("refusing to write invalid configuration: %s", strings.Join(v.Errors, "; "))
	}
	var opts []configbridge.WriteOption
	if noBackup, _ := cmd.Flags().GetBool("no-backup"); noBackup {
		opts = append(opts, configbridge.WithoutBackup())
	}
	if err := bridge.Write(ctx, name, data, opts...); err != nil {
		return err
	}
	fmt.Printf("%s: %s updated\n", name, key)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	l, bridge, err := initBridge()
	if err != nil {
		return err
	}
	defer shutdown(l)
	data, err := bridge.Read(ctx, args[0], false)
	if err != nil {
		return err
	}
	v := bridge.Validate(args[0], data)
	for _, e := range v.Errors {
		fmt.Printf("error: %s\n", e)
	}
	for _, w := range v.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if !v.Valid {
		return fmt.Errorf("%s is invalid", args[0])
	}
	fmt.Printf("%s is valid\n", args[0])
	return nil
}

func runConfigBackups(_ *cobra.Command, args []string) error {
	l, bridge, err := initBridge()
	if err != nil {
		return err
	}
	defer shutdown(l)
	backups, err := bridge.Backups(args[0])
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("No backups found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tFORMAT\tSIZE\tCREATED")
	for _, b := range backups {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", b.ID, b.Format, formatSize(b.Size), formatTime(b.CreatedAt))
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}

func runConfigRestore(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	l, bridge, err := initBridge()
	if err != nil {
		return err
	}
	defer shutdown(l)
	if err := bridge.RestoreBackup(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%s restored from %s\n", args[0], args[1])
	return nil
}

func runConfigPrune(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	l, bridge, err := initBridge()
	if err != nil {
		return err
	}
	defer shutdown(l)
	keep, _ := cmd.Flags().GetInt("keep")
	if keep <= 0 {
		keep = conf.ConfigBridge.BackupRetentionCount
	}
	n, err := bridge.CleanupBackups(ctx, args[0], keep)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d backup(s) of %s.\n", n, args[0])
	return nil
}

// lookupKey walks a dotted path through nested mappings.
func lookupKey(data map[string]any, key string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// setKey assigns value at a dotted path, creating intermediate mappings.
func setKey(data map[string]any, key string, value any) error {
	parts := strings.Split(key, ".")
	cur := data
	for i, part := range parts[:len(parts)-1] {
		next, ok := cur[part]
		if !ok {
			m := map[string]any{}
			cur[part] = m
			cur = m
			continue
		}
		if cur, ok = next.(map[string]any); !ok {
			return fmt.Errorf("%s is not a mapping", strings.Join(parts[:i+1], "."))
		}
	}
	cur[parts[len(parts)-1]] = value
	return nil
}
