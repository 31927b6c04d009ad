/*
@Author: Lzww
@LastEditTime: 2025-10-18 14:02:11
@Description: wavesim drives wave limiters against simulated devices
@Language: Go 1.23.4
*/

package main

import (
	"os"

	"wave-limiter/cmd/wavesim/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
