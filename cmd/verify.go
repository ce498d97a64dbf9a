package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ibarkgames/scripts/sync"
)

// ErrTreesDiffer is returned by verify when the local project does not
// mirror the backup.
var ErrTreesDiffer = errors.New("local project differs from backup")

func newVerifyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <backup_path> <local_project>",
		Short: "List every path where the local project differs from the backup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, roots, excl, err := setup(v, args[0], args[1])
			if err != nil {
				return err
			}

			diffs, err := sync.Compare(fsys, roots, excl)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if v.GetBool("yaml") {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(diffs); err != nil {
					return err
				}
				if err := enc.Close(); err != nil {
					return err
				}
			} else {
				for _, d := range diffs {
					fmt.Fprintf(out, "%-8s %s\n", d.Type, d.Path)
				}
			}

			if len(diffs) > 0 {
				return fmt.Errorf("%d differences: %w", len(diffs), ErrTreesDiffer)
			}
			if !v.GetBool("yaml") {
				fmt.Fprintf(out, "In sync: %s\n", roots.Dest)
			}
			return nil
		},
	}
	cmd.Flags().Bool("yaml", false, "print differences as YAML")
	return cmd
}
