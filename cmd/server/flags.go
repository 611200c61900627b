package main

import (
	"flag"
	"fmt"
	"os"
)

type Flags struct {
	ConfigFile string
	Host       string
	Port       int
	LogLevel   string
	LogFormat  string
	Version    bool
}

// ParseFlags reads command line flags. Non-empty values override the
// configuration file.
func ParseFlags() *Flags {
	flags := &Flags{}

	flag.StringVar(&flags.ConfigFile, "config", "", "Path to configuration file (default $HOME/.modelregistry.yaml)")
	flag.StringVar(&flags.Host, "host", "", "Server host")
	flag.IntVar(&flags.Port, "port", 0, "Server port")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&flags.LogFormat, "log-format", "", "Log format (json, text)")
	flag.BoolVar(&flags.Version, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nModel Registry Server\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flags.Version {
		info := GetBuildInfo()
		fmt.Printf("Version: %s\n", info.Version)
		fmt.Printf("Git Commit: %s\n", info.GitCommit)
		fmt.Printf("Build Date: %s\n", info.BuildTime)
		fmt.Printf("Go Version: %s\n", info.GoVersion)
		fmt.Printf("Platform: %s\n", info.Platform)
		os.Exit(0)
	}

	return flags
}
