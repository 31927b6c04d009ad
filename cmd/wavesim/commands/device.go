/*
@Author: Lzww
@LastEditTime: 2025-10-18 15:24:09
@Description: device command, shows the host modeled as a device
@Language: Go 1.23.4
*/

package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	wavelimiter "wave-limiter"
	"wave-limiter/internal/simdev"
)

func newDeviceCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Show the host device and the wave limiter decision for it",
		Long: `Display the host CPU modeled as a device.

Physical cores count as shader arrays and hardware threads per core as SIMDs.
Wide vector support stands in for the hardware generation check that decides
whether wave limiting is enabled by default.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			info := simdev.Host()
			dev := simdev.HostDevice()
			fmt.Fprintln(out, "Host Device")
			fmt.Fprintf(out, "   Brand: %s\n", dev.Name)
			fmt.Fprintf(out, "   Vendor: %s (family %d, model %d)\n", info.Vendor, info.Family, info.Model)
			fmt.Fprintf(out, "   Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "   Shader arrays: %d\n", dev.ShaderArr)
			fmt.Fprintf(out, "   SIMDs per shader array: %d\n", dev.SIMDPerSH)
			fmt.Fprintf(out, "   Wide vectors: %v\n\n", dev.CiPlus)

			mgr, err := wavelimiter.NewManager(&simdev.Kernel{KernelName: "host"}, dev.SIMDPerSH, cfg)
			if err != nil {
				return err
			}
			defer mgr.Close()
			mgr.Enable(dev.CiPlus)

			fmt.Fprintln(out, "Wave Limiter")
			fmt.Fprintf(out, "   Mode: %s\n", cfg.Enable)
			fmt.Fprintf(out, "   Adaptive: %v\n", mgr.Enabled())
			if fixed := mgr.Fixed(); fixed > 0 {
				fmt.Fprintf(out, "   Fixed waves per SIMD: %d\n", fixed)
			}
			fmt.Fprintf(out, "   Initial waves per SIMD: %d\n", mgr.WavesPerSH(dev))
			fmt.Fprintf(out, "   Initial waves per shader array: %d\n", mgr.ShaderArrayWaves(dev))
			return nil
		},
	}
}
