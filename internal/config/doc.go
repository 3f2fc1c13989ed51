// Package config provides configuration parsing for typlive.
//
// Settings come from an optional typlive.json in the working directory (or the
// file passed with --config) and are then overridden by command line flags.
// The resulting Config is read-only for the lifetime of the process.
//
// # Configuration File Structure
//
//	{
//	  "address": "127.0.0.1",
//	  "port": 5599,
//	  "filename": "main.typ",
//	  "noRecompile": false,
//	  "compiler": {
//	    "command": "typst",
//	    "args": ["--root", "."]
//	  },
//	  "watch": ["chapters", "figures"],
//	  "ignore": ["**/*.tmp"],
//	  "session": {
//	    "maxBrokenPipes": 1,
//	    "writeTimeout": "10s"
//	  },
//	  "disableMetrics": false,
//	  "logLevel": "info"
//	}
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Serving on", cfg.URL())
package config
