package backend

import (
	"context"
	"fmt"
	"log/slog"
)

// Router decides where a build request runs. Stages are tried in
// order: local for local targets, then container, then cross
// toolchain, then plain local as the last resort. Each stage's
// failure is logged before moving on rather than aborting the request.
type Router struct {
	local     *Local
	container *Container
	cross     *Cross
	logger    *slog.Logger
}

// NewRouter wires the three backends together.
func NewRouter(local *Local, container *Container, cross *Cross, logger *slog.Logger) *Router {
	return &Router{
		local:     local,
		container: container,
		cross:     cross,
		logger:    logger.With("module", "backend"),
	}
}

// Route executes the request on the first backend that can serve it.
// It returns the output, the name of the backend that produced it, and
// the final error when every stage failed.
func (r *Router) Route(ctx context.Context, req Request) (output, backendName string, err error) {
	if req.Target == TargetLocal {
		out, err := r.local.Run(ctx, req)

		return out, r.local.Name(), err
	}

	var lastErr error

	if r.container != nil && r.container.Available(ctx) {
		out, err := r.container.Run(ctx, req)
		if err == nil {
			return out, r.container.Name(), nil
		}

		lastErr = err
		r.logger.Warn("container backend failed, trying next stage", "target", req.Target, "error", err)
	}

	if r.cross != nil && r.cross.Supports(req.System, req.Target) {
		out, err := r.cross.Run(ctx, req)
		if err == nil {
			return out, r.cross.Name(), nil
		}

		lastErr = err
		r.logger.Warn("cross backend failed, trying next stage", "target", req.Target, "error", err)
	}

	// Ultimate fallback: run on the host anyway. For most systems
	// this produces a host-platform artifact, which is still better
	// than nothing.
	out, err := r.local.Run(ctx, req)
	if err == nil {
		return out, r.local.Name(), nil
	}

	if lastErr != nil {
		return out, r.local.Name(), fmt.Errorf("all backends failed for %s: %w (earlier: %v)", req.Target, err, lastErr)
	}

	return out, r.local.Name(), err
}
