// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Solstice - Wake-Synchronized Sensor Network
//
// A gateway and battery sensor nodes sharing one wake schedule over a
// low-power radio, plus tools to relay, monitor and simulate the network.

package main

import (
	"os"

	"github.com/Thermoquad/solstice/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
