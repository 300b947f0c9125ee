package loader

import (
	"context"

	"go.uber.org/multierr"
)

// LoadModules loads each of bytesPerModule in order, continuing past a
// failed module instead of stopping at the first one, and returns every
// successfully loaded ModuleHandle plus a combined error reporting every
// failure. Mirrors the teacher's own use of multierr inside zap's internal
// plumbing: aggregate independent failures instead of discarding all but
// the first. Grounded on linker.Linker's per-module bridge bookkeeping,
// which likewise tracks several independent subsystems under one call.
func (l *Loader) LoadModules(ctx context.Context, bytesPerModule [][]byte) ([]*ModuleHandle, error) {
	handles := make([]*ModuleHandle, 0, len(bytesPerModule))
	var errs error

	for _, b := range bytesPerModule {
		h, err := l.LoadModule(ctx, b)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		handles = append(handles, h)
	}

	return handles, errs
}
