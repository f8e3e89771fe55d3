package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Configure an HC-SR04 and take measurements",
	Long: `Configure an HC-SR04 on the given trigger and echo pins and print
one line per measurement. Failed measurements (busy, echo timeout, echo
without start) are printed and do not stop the run.

Example usage:
  sonar-host measure --trigger 14 --echo 15
  sonar-host measure --trigger 14 --echo 15 --power-pin 13
  sonar-host measure --oid 2 --trigger 16 --echo 17 --count 0 --interval 100ms`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		oid, _ := cmd.Flags().GetUint8("oid")
		trigger, _ := cmd.Flags().GetUint32("trigger")
		echo, _ := cmd.Flags().GetUint32("echo")
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")
		powerPin, _ := cmd.Flags().GetInt("power-pin")
		powerOID, _ := cmd.Flags().GetUint8("power-oid")

		m, err := connect(cmd)
		if err != nil {
			return err
		}
		defer m.Close()

		if powerPin >= 0 {
			if err := m.ConfigureDigitalOut(powerOID, uint32(powerPin), true, false); err != nil {
				return err
			}
			// The sensor needs its supply up before the trigger line settles
			time.Sleep(50 * time.Millisecond)
		}
		if err := m.ConfigureHCSR04(oid, trigger, echo); err != nil {
			return err
		}
		if err := m.FinalizeConfig(0); err != nil {
			return fmt.Errorf("finalize_config: %w", err)
		}

		out := cmd.OutOrStdout()
		ctx := cmd.Context()

		for i := 0; count <= 0 || i < count; i++ {
			if i > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(interval):
				}
			}

			// Well above the firmware echo deadline
			mctx, cancel := context.WithTimeout(ctx, time.Second)
			meas, err := m.Measure(mctx, oid)
			cancel()
			if err != nil {
				return err
			}

			if meas.Err != nil {
				fmt.Fprintf(out, "%d: clock=%d %v\n", i, meas.Clock, meas.Err)
				continue
			}
			fmt.Fprintf(out, "%d: clock=%d echo=%v distance=%.3fm\n", i, meas.Clock, meas.Delay, meas.Distance)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(measureCmd)

	measureCmd.Flags().Uint8("oid", 0, "Sensor object id")
	measureCmd.Flags().Uint32("trigger", 0, "Trigger GPIO number")
	measureCmd.Flags().Uint32("echo", 0, "Echo GPIO number")
	measureCmd.Flags().IntP("count", "n", 1, "Number of measurements (0 runs until interrupted)")
	measureCmd.Flags().Duration("interval", 200*time.Millisecond, "Delay between measurements")
	measureCmd.Flags().Int("power-pin", -1, "GPIO switching the sensor supply (-1 when always powered)")
	measureCmd.Flags().Uint8("power-oid", 100, "Object id for the supply switch")
	measureCmd.MarkFlagRequired("trigger")
	measureCmd.MarkFlagRequired("echo")
}
