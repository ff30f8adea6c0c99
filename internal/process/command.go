package process

import "strings"

// Command is a configured external tool invocation template.
//
// Binary may be a multi-word prefix such as "/usr/bin/sudo /bin/mount".
// Options are placed between the binary and the per-call arguments.
type Command struct {
	// Name identifies the tool in logs and statistics ("mount", "probe_volume").
	Name string `yaml:"-"`

	Binary  string `yaml:"binary"`
	Options string `yaml:"options"`
}

// Argv returns the full argument vector for an invocation with extra arguments.
func (c Command) Argv(extra ...string) []string {
	argv := strings.Fields(c.Binary)
	argv = append(argv, strings.Fields(c.Options)...)
	return append(argv, extra...)
}

// String renders the command line without per-call arguments.
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// Tools is the set of external commands used by the automounter.
// It is built from configuration once and passed to every consumer.
type Tools struct {
	Mount       Command `yaml:"mount"`
	Unmount     Command `yaml:"unmount"`
	Mountpoint  Command `yaml:"mountpoint"`
	ProbeDevice Command `yaml:"probe_device"`
	ProbeVolume Command `yaml:"probe_volume"`
}

// DefaultTools returns the stock tool set for a Linux host.
func DefaultTools() Tools {
	return Tools{
		Mount:       Command{Binary: "/bin/mount", Options: "-o ro"},
		Unmount:     Command{Binary: "/bin/umount"},
		Mountpoint:  Command{Binary: "/bin/mountpoint", Options: "-q"},
		ProbeDevice: Command{Binary: "/sbin/udevadm", Options: "info --query=all --export"},
		ProbeVolume: Command{Binary: "/sbin/blkid", Options: "-o export"},
	}.Named()
}

// Named fills in each Command's Name from its role.
func (t Tools) Named() Tools {
	t.Mount.Name = "mount"
	t.Unmount.Name = "unmount"
	t.Mountpoint.Name = "mountpoint"
	t.ProbeDevice.Name = "probe_device"
	t.ProbeVolume.Name = "probe_volume"
	return t
}
