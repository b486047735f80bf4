package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/herlein/rfsignal/pkg/config"
	"github.com/herlein/rfsignal/pkg/profiles"
)

var profileChip string

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List and export radio profiles",
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the preset profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tFREQUENCY\tBAUD\tDESCRIPTION")
		for _, name := range profiles.Names() {
			p, _ := profiles.Lookup(name)
			fmt.Fprintf(w, "%s\t%.2f MHz\t%.0f\t%s\n", p.Name, p.FrequencyHz/1e6, p.DataRateBaud, p.Description)
		}
		return w.Flush()
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <preset-or-file>",
	Short: "Show the register values of a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := resolveProfile(args[0])
		if err != nil {
			return err
		}
		crystal, err := crystalFor(profileChip)
		if err != nil {
			return err
		}

		s := p.Settings(crystal)
		fmt.Printf("Profile: %s\n", p.Name)
		fmt.Printf("  %s\n", p.Description)
		fmt.Printf("  Crystal: %.0f MHz\n\n", crystal/1e6)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for i, v := range s.Regs {
			fmt.Fprintf(w, "  %s\t0x%02X\n", profiles.Register(i), v)
		}
		fmt.Fprintf(w, "  PATABLE\t% X\n", s.PATable[:])
		return w.Flush()
	},
}

var profilesSaveCmd = &cobra.Command{
	Use:   "save <preset-or-file> <path>",
	Short: "Write a profile and its register values as YAML",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := resolveProfile(args[0])
		if err != nil {
			return err
		}
		crystal, err := crystalFor(profileChip)
		if err != nil {
			return err
		}
		if err := p.SaveToFile(args[1], crystal); err != nil {
			return err
		}
		fmt.Printf("Saved %s to %s\n", p.Name, args[1])
		return nil
	},
}

func resolveProfile(name string) (profiles.Profile, error) {
	return config.RadioConfig{Profile: name}.LoadProfile()
}

func crystalFor(chip string) (float64, error) {
	switch chip {
	case "cc1101":
		return profiles.CrystalCC1101, nil
	case "cc1111", "yardstick":
		return profiles.CrystalCC1111, nil
	}
	return 0, errors.Errorf("unknown chip %q", chip)
}

func init() {
	profilesCmd.PersistentFlags().StringVar(&profileChip, "chip", "cc1101", "chip the registers are computed for (cc1101, cc1111)")
	profilesCmd.AddCommand(profilesListCmd, profilesShowCmd, profilesSaveCmd)
}
