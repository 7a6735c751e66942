// Copyright (c) 2026 Mesh Intelligence. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build mage

// Package main provides build targets for the specarchive project using Mage.
//
// Usage:
//
//	mage build       Compile specarchive binary to bin/
//	mage install     Install specarchive to GOPATH/bin
//	mage test:all    Run all tests
//	mage test:unit   Run tests in short mode
//	mage test:race   Run all tests with the race detector
//	mage test:cover  Write a coverage profile to bin/
//	mage lint        Run golangci-lint
//	mage clean       Remove build artifacts
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "specarchive"
	binaryDir  = "bin"
	cmdDir     = "./cmd/specarchive"
	versionVar = "github.com/mesh-intelligence/specarchive/internal/cli.Version"
)

// ldflags stamps the version from SPECARCHIVE_VERSION or the nearest git tag.
func ldflags() string {
	version := os.Getenv("SPECARCHIVE_VERSION")
	if version == "" {
		out, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
		if err != nil {
			return ""
		}
		version = strings.TrimPrefix(out, "v")
	}
	return "-X " + versionVar + "=" + version
}

// Build compiles the specarchive binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags(), "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
