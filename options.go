package gitfs

import (
	"strings"

	"github.com/pkg/errors"
)

// MountOptions is the parsed form of the -o option list.
type MountOptions struct {
	// Rev selects the snapshot; empty means HEAD.
	Rev string
	// NoOidFiles hides the synthetic hash files.
	NoOidFiles bool
	Debug      bool
	// NoChroot skips confinement.
	NoChroot   bool
	AllowOther bool
	// Kernel holds options we don't recognise, passed to the mount
	// unchanged.
	Kernel []string
}

// ParseOptions parses a comma separated option list such as
// "rev=main,no-oid-files,noatime".
func ParseOptions(s string) (opts MountOptions, err error) {
	seen := make(map[string]bool)
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		key, val, hasVal := strings.Cut(raw, "=")

		flag := func(dst *bool) error {
			if hasVal {
				return errors.Errorf("option %s takes no value", key)
			}
			*dst = true
			return nil
		}

		switch key {
		case "rev", "no-oid-files", "ro", "rw", "debug", "nochroot", "allow_other":
			if seen[key] {
				return opts, configError("options", errors.Errorf("option %s given more than once", key))
			}
			seen[key] = true
		}

		var ro bool
		switch key {
		case "rev":
			if val == "" {
				err = errors.New("option rev needs a value")
			}
			opts.Rev = val
		case "no-oid-files":
			err = flag(&opts.NoOidFiles)
		case "ro":
			err = flag(&ro)
		case "rw":
			err = errors.New("read-write mounts are not supported")
		case "debug":
			err = flag(&opts.Debug)
		case "nochroot":
			err = flag(&opts.NoChroot)
		case "allow_other":
			err = flag(&opts.AllowOther)
		default:
			opts.Kernel = append(opts.Kernel, raw)
		}
		if err != nil {
			return MountOptions{}, configError("options", err)
		}
	}
	return opts, nil
}
