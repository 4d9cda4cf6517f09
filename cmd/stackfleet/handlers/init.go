package handlers

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/util/keygen"
)

const keyBits = 4096

// Factory function variables for init - can be replaced in tests.
var (
	// fileExists checks if a file exists.
	fileExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	// runWizard runs the interactive wizard.
	runWizard = config.RunWizard

	// saveConfig writes the config to a file.
	saveConfig = config.Save

	// generateKeyPair creates a new SSH key pair.
	generateKeyPair = keygen.GenerateRSAKeyPair
)

// Init runs the configuration wizard and writes the result to a file. With
// generateKey, an SSH key pair is created at the configured path when none
// exists yet.
func Init(ctx context.Context, outputPath string, generateKey bool) error {
	if fileExists(outputPath) {
		fmt.Fprintf(stdout, "Warning: %s already exists and will be overwritten.\n\n", outputPath)
	}

	printWelcome()

	result, err := runWizard(ctx)
	if err != nil {
		return fmt.Errorf("wizard canceled: %w", err)
	}

	cfg := result.ToConfig()

	if err := saveConfig(cfg, outputPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	var publicKey []byte
	if generateKey {
		publicKey, err = ensureKeyPair(expandHome(cfg.SSH.PrivateKeyPath))
		if err != nil {
			return err
		}
	}

	printInitSuccess(outputPath, cfg, publicKey)
	return nil
}

// ensureKeyPair generates a key pair at path unless one exists. It returns
// the new public key, or nil when the existing key was kept.
func ensureKeyPair(path string) ([]byte, error) {
	if fileExists(path) {
		return nil, nil
	}
	pair, err := generateKeyPair(keyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SSH key: %w", err)
	}
	if err := pair.WriteFiles(path); err != nil {
		if errors.Is(err, keygen.ErrKeyExists) {
			return nil, nil
		}
		return nil, err
	}
	return pair.PublicKey, nil
}

// printWelcome prints the welcome message.
func printWelcome() {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "stackfleet - software stacks on testbed fleets")
	fmt.Fprintln(stdout, "==============================================")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "This wizard creates a run configuration with sensible defaults.")
	fmt.Fprintln(stdout)
}

// printInitSuccess prints the success message with summary and next steps.
func printInitSuccess(outputPath string, cfg *config.Config, publicKey []byte) {
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Configuration saved!")
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "  File: %s\n", outputPath)
	fmt.Fprintln(stdout)

	fmt.Fprintln(stdout, "Run Summary")
	fmt.Fprintln(stdout, "-----------")
	for _, line := range cfg.Summary() {
		fmt.Fprintf(stdout, "  %s\n", line)
	}
	fmt.Fprintln(stdout)

	if len(publicKey) > 0 {
		fmt.Fprintln(stdout, "SSH Key")
		fmt.Fprintln(stdout, "-------")
		fmt.Fprintf(stdout, "  Created %s. Add this public key to your testbed account:\n", cfg.SSH.PrivateKeyPath)
		fmt.Fprintf(stdout, "  %s\n", publicKey)
	}

	fmt.Fprintln(stdout, "Next Steps")
	fmt.Fprintln(stdout, "----------")
	fmt.Fprintf(stdout, "  1. Review %s if needed\n", outputPath)
	fmt.Fprintln(stdout, "  2. Check your setup:")
	fmt.Fprintln(stdout, "     stackfleet doctor")
	fmt.Fprintln(stdout, "  3. Provision the fleet:")
	fmt.Fprintln(stdout, "     stackfleet run")
	fmt.Fprintln(stdout)
}
