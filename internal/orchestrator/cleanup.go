package orchestrator

import (
	"context"
	"os"

	"github.com/campers-dev/campers/internal/compute"
	"github.com/campers-dev/campers/internal/events"
	"github.com/campers-dev/campers/internal/registry"
	"github.com/campers-dev/campers/internal/runconfig"
	"github.com/campers-dev/campers/internal/signals"
)

// runCleanup implements the Cleanup Coordinator protocol (spec.md §4.H2): a
// second concurrent entrant returns immediately, the registry is drained
// atomically and disposed in reverse registration order, and every
// disposal failure is logged but does not halt the remaining ones.
func (o *Orchestrator) runCleanup(signum int) {
	if !o.cleanupMu.TryLock() {
		return
	}
	defer o.cleanupMu.Unlock()

	o.cleanupInProgress.Store(true)
	defer o.cleanupInProgress.Store(false)

	o.deps.Bus.Status(events.StatusTerminating)

	handles := o.registry.Drain()
	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		o.deps.Bus.Cleanup(string(h.Kind), events.CleanupInProgress)
		err := o.disposeHandle(h)
		if err == nil && h.Dispose != nil {
			err = h.Dispose(h.Payload)
		}
		if err != nil {
			o.deps.Bus.Cleanup(string(h.Kind), events.CleanupFailed)
			o.deps.Bus.Logf("cleanup: %s disposal failed: %v", h.Kind, err)
			continue
		}
		o.deps.Bus.Cleanup(string(h.Kind), events.CleanupCompleted)
	}

	if signum != 0 {
		os.Exit(signals.ExitCodeForSignal(signum))
	}
}

func (o *Orchestrator) disposeHandle(h registry.Handle) error {
	switch h.Kind {
	case registry.KindTunnels:
		if o.deps.HarnessManaged {
			return nil
		}
		if tc, ok := h.Payload.(tunnelController); ok {
			tc.StopAll()
		}
		return nil

	case registry.KindSyncSession:
		name, _ := h.Payload.(string)
		if name != "" {
			o.deps.Sync.Terminate(context.Background(), name)
		}
		return nil

	case registry.KindSSH:
		if o.deps.HarnessManaged {
			return nil
		}
		if tr, ok := h.Payload.(transport); ok {
			tr.AbortActiveCommand()
			return tr.Close()
		}
		return nil

	case registry.KindInstance:
		desc, ok := h.Payload.(compute.Descriptor)
		if !ok {
			return nil
		}
		if o.cfg != nil && o.cfg.OnExit == runconfig.OnExitTerminate {
			return o.deps.Compute.Terminate(context.Background(), desc.InstanceID)
		}
		return o.deps.Compute.Stop(context.Background(), desc.InstanceID)

	case registry.KindComputeProvider:
		return nil

	case registry.KindKeyMaterial:
		path, _ := h.Payload.(string)
		if path == "" {
			return nil
		}
		return os.Remove(path)

	default:
		return nil
	}
}
