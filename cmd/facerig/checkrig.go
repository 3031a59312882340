package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-facerig/pkg/rig"
)

// rigReport describes how a rig config binds to a mesh.
type rigReport struct {
	Mesh    string
	Bound   []string
	Missing []string
	Head    bool
	Neck    bool
}

// Usable reports whether the rig drives anything at all.
func (r rigReport) Usable() bool {
	return len(r.Bound) > 0 || r.Head
}

func checkRig(cfg rig.Config, mesh rig.Mesh) (rigReport, error) {
	ctrl, err := rig.NewController(cfg, mesh)
	if err != nil {
		return rigReport{}, err
	}

	r := rigReport{Missing: ctrl.Skipped()}
	for name := range ctrl.Bound() {
		r.Bound = append(r.Bound, name)
	}
	sort.Strings(r.Bound)

	_, r.Head = mesh.Bone(cfg.Bones.Head)
	if cfg.Bones.Neck != "" {
		_, r.Neck = mesh.Bone(cfg.Bones.Neck)
	}
	return r, nil
}

func (r rigReport) write(w io.Writer) {
	fmt.Fprintf(w, "mesh:    %s\n", r.Mesh)
	fmt.Fprintf(w, "bound:   %d morphs\n", len(r.Bound))
	if len(r.Missing) > 0 {
		fmt.Fprintf(w, "missing: %s\n", strings.Join(r.Missing, ", "))
	} else {
		fmt.Fprintln(w, "missing: none")
	}
	fmt.Fprintf(w, "head:    %s\n", found(r.Head))
	fmt.Fprintf(w, "neck:    %s\n", found(r.Neck))
}

func found(ok bool) string {
	if ok {
		return "ok"
	}
	return "not found"
}

func newCheckRigCmd(c *cli) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check-rig",
		Short: "Report how the rig config binds to a mesh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, msh, err := loadRig(c.settings.Rig)
			if err != nil {
				return err
			}
			r, err := checkRig(cfg, msh)
			if err != nil {
				return err
			}
			r.Mesh = msh.Name()
			r.write(cmd.OutOrStdout())

			if !r.Usable() {
				return fmt.Errorf("rig drives nothing on mesh %q", r.Mesh)
			}
			if strict && len(r.Missing) > 0 {
				return fmt.Errorf("%d mapped morphs missing from mesh", len(r.Missing))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any mapped morph is missing")
	return cmd
}
