package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// envPrefix prefixes the environment variables that back command-line flags.
const envPrefix = "AXIFUZZ_"

// parseFlagsFromEnv sets every flag that is not given on the command line
// from the environment variable with the upper-cased flag name and envPrefix.
func parseFlagsFromEnv(fs *pflag.FlagSet, prefix string) error {
	nonset := make(map[string]*pflag.Flag)

	fs.VisitAll(func(f *pflag.Flag) {
		nonset[f.Name] = f
	})
	fs.Visit(func(f *pflag.Flag) {
		delete(nonset, f.Name)
	})

	for name, f := range nonset {
		v := os.Getenv(envName(name, prefix))
		if v == "" {
			continue
		}

		if err := f.Value.Set(v); err != nil {
			return fmt.Errorf("%s=%q: %w", envName(name, prefix), v, err)
		}
		f.Changed = true
	}

	return nil
}

func envName(flagName, prefix string) string {
	flagName = strings.ToUpper(flagName)
	flagName = strings.ReplaceAll(flagName, "-", "_")

	return prefix + flagName
}
