package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sonar/host/mcu"
	"sonar/host/serial"
)

var rootCmd = &cobra.Command{
	Use:   "sonar-host",
	Short: "Configure and read HC-SR04 sensors on a sonar MCU",
	Long: `sonar-host speaks the Klipper serial protocol to an MCU running the
sonar firmware. It retrieves the MCU data dictionary, configures HC-SR04
sensors and requests measurements.

Example usage:
  sonar-host dict --device /dev/ttyACM0
  sonar-host measure --trigger 14 --echo 15 --count 10`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("device", "d", "/dev/ttyACM0", "Serial device path")
	rootCmd.PersistentFlags().IntP("baud", "b", serial.DefaultBaud, "Baud rate (ignored for USB CDC)")
}

// connect opens the configured device and loads the MCU dictionary
func connect(cmd *cobra.Command) (*mcu.MCU, error) {
	device, _ := cmd.Flags().GetString("device")
	baud, _ := cmd.Flags().GetInt("baud")

	cfg := serial.DefaultConfig(device)
	cfg.Baud = baud

	m := mcu.NewMCU()
	if err := m.ConnectWithConfig(cfg); err != nil {
		return nil, err
	}
	if err := m.RetrieveDictionary(); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to retrieve dictionary: %w", err)
	}
	return m, nil
}
