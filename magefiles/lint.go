// Copyright (c) 2026 Mesh Intelligence. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

package main

import "github.com/magefile/mage/sh"

const binLint = "golangci-lint"

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Vet runs go vet.
func Vet() error {
	return sh.RunV(binGo, "vet", "./...")
}
