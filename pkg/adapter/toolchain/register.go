package toolchain

import (
	"github.com/3leaps/kiln/pkg/adapter"
	"github.com/3leaps/kiln/pkg/buildcfg"
)

// RegisterDefaults registers every built-in adapter on the registry.
func RegisterDefaults(r *adapter.Registry) {
	r.Register(NewBun())
	r.Register(NewEsbuild())
	r.Register(NewTsc())
	r.Register(NewRollup())
	r.Register(NewScript())
}

// optionArgs extracts extra command-line arguments from the opaque
// builder_options bag. Only the "args" key is honored; values must be
// strings, anything else is ignored.
func optionArgs(cfg *buildcfg.Config) []string {
	raw, ok := cfg.BuilderOptions["args"]
	if !ok {
		return nil
	}

	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	var args []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			args = append(args, s)
		}
	}
	return args
}
