// Copyright 2025 The MediQuery Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/jcodagnone/mediquery/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
