//go:build mage
// +build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target when running mage without arguments.
var Default = Build

// Build builds the payctl binary.
func Build() error {
	fmt.Println("Building payctl...")
	return sh.Run("go", "build", "-o", "bin/payctl", "./cmd/payctl")
}

// Test runs all tests with race detection.
func Test() error {
	fmt.Println("Running tests...")
	return sh.RunV("go", "test", "-race", "./...")
}

// Lint runs go vet.
func Lint() error {
	fmt.Println("Running go vet...")
	return sh.RunV("go", "vet", "./...")
}

// Tidy tidies the module files.
func Tidy() error {
	return sh.Run("go", "mod", "tidy")
}

// Clean removes build artifacts.
func Clean() error {
	mg.Deps(Tidy)
	return sh.Rm("bin")
}
