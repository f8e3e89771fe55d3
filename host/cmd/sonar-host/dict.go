package main

import (
	"github.com/spf13/cobra"
)

var dictCmd = &cobra.Command{
	Use:   "dict",
	Short: "Print the MCU data dictionary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")

		m, err := connect(cmd)
		if err != nil {
			return err
		}
		defer m.Close()

		out := cmd.OutOrStdout()
		if raw {
			_, err := out.Write(append(m.GetDictionaryRaw(), '\n'))
			return err
		}
		m.PrintDictionary(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dictCmd)

	dictCmd.Flags().Bool("raw", false, "Print the decompressed dictionary JSON")
}
