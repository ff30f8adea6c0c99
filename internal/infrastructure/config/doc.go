// Package config handles loading and validating automountd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (AUTOMOUNTD_SECTION_KEY)
//   - Validation of paths, tools and enabled sinks
//   - Default value handling
//
// The defaults are complete: the daemon runs without any configuration file,
// watching /dev/disk/by-id and mounting under /run/automountd.
//
// Security Considerations:
//   - The mount tools run as the daemon's user; configure a privileged
//     wrapper ("/usr/bin/sudo /bin/mount") through tools.mount.binary rather
//     than running the whole daemon as root where possible
//   - MQTT and InfluxDB credentials should be set via environment variables
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Paths.WorkingDirectory)
package config
