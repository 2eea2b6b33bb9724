package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getsimpletool/mcpo-simple-server/internal/logger"
	"github.com/getsimpletool/mcpo-simple-server/internal/userstore"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultCallTimeout      = 120 * time.Second
	defaultShutdownGrace    = 5 * time.Second

	// failedShutdownGrace is used when tearing down a child that already
	// failed its handshake; no point waiting the full operator grace.
	failedShutdownGrace = 2 * time.Second

	reconcileConcurrency = 8
)

// Options tunes controller behavior. Zero values select the defaults.
type Options struct {
	HandshakeTimeout    time.Duration
	CallTimeout         time.Duration
	ShutdownGrace       time.Duration
	MaxInflightPerChild int      // 0 = unbounded
	EnvAllowList        []string // nil = DefaultEnvAllowList
	StartRetries        int      // extra handshake attempts on spawn-level errors
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.HandshakeTimeout <= 0 {
		out.HandshakeTimeout = defaultHandshakeTimeout
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = defaultCallTimeout
	}
	if out.ShutdownGrace <= 0 {
		out.ShutdownGrace = defaultShutdownGrace
	}
	return out
}

// Controller is the command surface consumed by the HTTP handlers. It
// owns the registry, enforces lifecycle transitions, resolves effective
// environments, and writes through to the user config store.
type Controller struct {
	registry *Registry
	users    userstore.Store
	opts     Options
}

// NewController builds a controller over the given user store.
func NewController(users userstore.Store, opts Options) *Controller {
	return &Controller{
		registry: NewRegistry(),
		users:    users,
		opts:     opts.withDefaults(),
	}
}

// Registry exposes the instance registry for read-only consumers.
func (c *Controller) Registry() *Registry { return c.registry }

// Add creates or replaces a server for the user, persists the spec, and
// starts the child unless the spec is disabled. A resident instance in
// running or starting is stopped first.
func (c *Controller) Add(ctx context.Context, username, name string, spec userstore.ServerSpec) (InstanceInfo, error) {
	if err := spec.Validate(); err != nil {
		return InstanceInfo{}, errf(KindBadRequest, "%w", err)
	}

	cfg, err := c.users.Get(ctx, username)
	if err != nil {
		return InstanceInfo{}, errf(KindNotFound, "user %q: %w", username, err)
	}

	key := Key{Username: username, Name: name}
	inst, err := c.lockInstance(key, spec, true)
	if err != nil {
		return InstanceInfo{}, err
	}
	defer inst.opMu.Unlock()

	c.stopLocked(inst)
	inst.setSpec(spec)

	if cfg.McpServers == nil {
		cfg.McpServers = make(map[string]userstore.ServerSpec)
	}
	cfg.McpServers[name] = spec
	if err := c.users.Save(ctx, cfg); err != nil {
		return InstanceInfo{}, fmt.Errorf("failed to persist spec for %s: %w", key, err)
	}

	if spec.Disabled {
		inst.setStatus(StatusStopped)
		return inst.Snapshot(), nil
	}

	if err := c.startLocked(ctx, inst, cfg.Env); err != nil {
		return inst.Snapshot(), err
	}
	logger.Infof("mcpserver %s added and started (pid %d)", key, inst.Snapshot().PID)
	return inst.Snapshot(), nil
}

// Start launches a configured server. Starting a running instance is a
// no-op success. At most one start per key runs at a time.
func (c *Controller) Start(ctx context.Context, username, name string) (InstanceInfo, error) {
	cfg, err := c.users.Get(ctx, username)
	if err != nil {
		return InstanceInfo{}, errf(KindNotFound, "user %q: %w", username, err)
	}
	spec, ok := cfg.McpServers[name]
	if !ok {
		return InstanceInfo{}, errf(KindNotFound, "no mcpserver %q configured for user %q", name, username)
	}

	key := Key{Username: username, Name: name}
	inst, err := c.lockInstance(key, spec, true)
	if err != nil {
		return InstanceInfo{}, err
	}
	defer inst.opMu.Unlock()

	if inst.Status() == StatusRunning {
		return inst.Snapshot(), nil
	}

	inst.setSpec(spec)
	if err := c.startLocked(ctx, inst, cfg.Env); err != nil {
		return inst.Snapshot(), err
	}
	return inst.Snapshot(), nil
}

// Stop shuts the child down. Stopping a stopped or failed instance is a
// no-op success.
func (c *Controller) Stop(ctx context.Context, username, name string) (InstanceInfo, error) {
	key := Key{Username: username, Name: name}
	inst, err := c.lockInstance(key, userstore.ServerSpec{}, false)
	if err != nil {
		return InstanceInfo{}, err
	}
	defer inst.opMu.Unlock()

	c.stopLocked(inst)
	return inst.Snapshot(), nil
}

// Restart stops and starts the child while holding the instance lock, so
// no competing start can slip in between.
func (c *Controller) Restart(ctx context.Context, username, name string) (InstanceInfo, error) {
	cfg, err := c.users.Get(ctx, username)
	if err != nil {
		return InstanceInfo{}, errf(KindNotFound, "user %q: %w", username, err)
	}
	spec, ok := cfg.McpServers[name]
	if !ok {
		return InstanceInfo{}, errf(KindNotFound, "no mcpserver %q configured for user %q", name, username)
	}

	key := Key{Username: username, Name: name}
	inst, err := c.lockInstance(key, spec, true)
	if err != nil {
		return InstanceInfo{}, err
	}
	defer inst.opMu.Unlock()

	c.stopLocked(inst)
	inst.setSpec(spec)
	if err := c.startLocked(ctx, inst, cfg.Env); err != nil {
		return inst.Snapshot(), err
	}
	return inst.Snapshot(), nil
}

// Delete stops the child if live, removes the instance from the registry,
// and removes the spec from the user config. A key known to neither the
// registry nor the config is not_found.
func (c *Controller) Delete(ctx context.Context, username, name string) error {
	key := Key{Username: username, Name: name}

	removed := false
	if inst, err := c.lockInstance(key, userstore.ServerSpec{}, false); err == nil {
		c.stopLocked(inst)
		c.registry.Remove(key)
		inst.opMu.Unlock()
		removed = true
	}

	cfg, err := c.users.Get(ctx, username)
	if err != nil {
		if removed {
			return nil
		}
		return errf(KindNotFound, "user %q: %w", username, err)
	}
	if _, ok := cfg.McpServers[name]; !ok {
		if removed {
			return nil
		}
		return errf(KindNotFound, "no mcpserver %q configured for user %q", name, username)
	}

	delete(cfg.McpServers, name)
	if err := c.users.Save(ctx, cfg); err != nil {
		// The registry entry is already gone but the spec stays persisted;
		// the next startup reconcile treats it as configured and starts it
		// again rather than removing it.
		return fmt.Errorf("failed to remove spec for %s: %w", key, err)
	}
	logger.Infof("mcpserver %s deleted", key)
	return nil
}

// UpdateEnv applies fn to the persisted spec's env map and writes it
// through. The running child is untouched; the new environment applies on
// the next start or restart.
func (c *Controller) UpdateEnv(ctx context.Context, username, name string, fn func(env map[string]string)) (*userstore.UserConfig, error) {
	cfg, err := c.users.Get(ctx, username)
	if err != nil {
		return nil, errf(KindNotFound, "user %q: %w", username, err)
	}
	spec, ok := cfg.McpServers[name]
	if !ok {
		return nil, errf(KindNotFound, "no mcpserver %q configured for user %q", name, username)
	}

	if spec.Env == nil {
		spec.Env = make(map[string]string)
	}
	fn(spec.Env)
	cfg.McpServers[name] = spec

	if err := c.users.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to persist env for %s/%s: %w", username, name, err)
	}

	// Keep the in-memory spec current so the next start picks it up even
	// without another config read.
	if inst, ok := c.registry.Get(Key{Username: username, Name: name}); ok {
		inst.setSpec(spec)
	}
	return cfg, nil
}

// Status returns a snapshot for one key.
func (c *Controller) Status(username, name string) (InstanceInfo, error) {
	inst, ok := c.registry.Get(Key{Username: username, Name: name})
	if !ok {
		return InstanceInfo{}, errf(KindNotFound, "no mcpserver %q for user %q", name, username)
	}
	return inst.Snapshot(), nil
}

// List returns snapshots of the user's instances.
func (c *Controller) List(username string) []InstanceInfo {
	instances := c.registry.ListByUser(username)
	out := make([]InstanceInfo, len(instances))
	for i, inst := range instances {
		out[i] = inst.Snapshot()
	}
	return out
}

// ListAll returns snapshots of every instance.
func (c *Controller) ListAll() []InstanceInfo {
	instances := c.registry.ListAll()
	out := make([]InstanceInfo, len(instances))
	for i, inst := range instances {
		out[i] = inst.Snapshot()
	}
	return out
}

// CallTool routes a tool invocation to the instance's MCP client. The
// instance must be running; the call itself runs without any instance
// lock, so concurrent calls multiplex on the child's stdio.
func (c *Controller) CallTool(ctx context.Context, username, name, tool string, args map[string]any) (*ToolResult, error) {
	inst, ok := c.registry.Get(Key{Username: username, Name: name})
	if !ok {
		return nil, errf(KindNotFound, "no mcpserver %q for user %q", name, username)
	}

	client, ok := inst.runningClient()
	if !ok {
		return nil, errf(KindServerNotRunning, "mcpserver %q is %s", name, inst.Status())
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}
	return client.CallTool(ctx, tool, args)
}

// Reconcile aligns the registry with persisted configuration at startup:
// every enabled spec is started (failures are recorded, not fatal), every
// disabled spec gets a stopped placeholder, and registry entries with no
// matching spec are stopped and removed.
func (c *Controller) Reconcile(ctx context.Context) {
	usernames, err := c.users.List(ctx)
	if err != nil {
		logger.Errorf("reconcile: failed to list users: %v", err)
		return
	}

	configured := make(map[Key]bool)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)

	for _, username := range usernames {
		cfg, err := c.users.Get(ctx, username)
		if err != nil {
			logger.Errorf("reconcile: failed to load user %q: %v", username, err)
			continue
		}
		for name, spec := range cfg.McpServers {
			key := Key{Username: username, Name: name}
			configured[key] = true

			if spec.Disabled {
				inst, _ := c.registry.InsertIfAbsent(newInstance(key, spec))
				inst.setStatus(StatusStopped)
				continue
			}

			g.Go(func() error {
				if _, err := c.Start(gctx, key.Username, key.Name); err != nil {
					logger.Errorf("reconcile: failed to start %s: %v", key, err)
				}
				return nil
			})
		}
	}
	g.Wait()

	// Defensive: drop instances whose spec vanished.
	for _, inst := range c.registry.ListAll() {
		if !configured[inst.Key] {
			inst.opMu.Lock()
			c.stopLocked(inst)
			c.registry.Remove(inst.Key)
			inst.opMu.Unlock()
			logger.Warnf("reconcile: removed stale instance %s", inst.Key)
		}
	}
}

// StopAll shuts down every live child; called on server shutdown.
func (c *Controller) StopAll() {
	for _, inst := range c.registry.ListAll() {
		inst.opMu.Lock()
		c.stopLocked(inst)
		inst.opMu.Unlock()
	}
}

// lockInstance resolves (creating if requested) the instance for key and
// acquires its transition lock, retrying when a concurrent delete wins
// the race between lookup and lock.
func (c *Controller) lockInstance(key Key, spec userstore.ServerSpec, create bool) (*ServerInstance, error) {
	for {
		inst, ok := c.registry.Get(key)
		if !ok {
			if !create {
				return nil, errf(KindNotFound, "no mcpserver %q for user %q", key.Name, key.Username)
			}
			inst, _ = c.registry.InsertIfAbsent(newInstance(key, spec))
		}

		inst.opMu.Lock()
		if cur, ok := c.registry.Get(key); ok && cur == inst {
			return inst, nil
		}
		inst.opMu.Unlock()

		if !create {
			return nil, errf(KindConflict, "mcpserver %q for user %q was deleted concurrently", key.Name, key.Username)
		}
	}
}

// startLocked spawns the child and runs the handshake. Caller holds opMu.
func (c *Controller) startLocked(ctx context.Context, inst *ServerInstance, userEnv map[string]string) error {
	spec := inst.Spec()
	inst.setStatus(StatusStarting)

	env := EffectiveEnv(c.opts.EnvAllowList, userEnv, spec.Env)
	logger.Infof("starting mcpserver %s: %s (env: %s)",
		inst.Key, spec.Command, strings.Join(envNames(env), ","))

	var lastErr error
	for attempt := 0; attempt <= c.opts.StartRetries; attempt++ {
		err := c.startOnce(ctx, inst, spec, env)
		if err == nil {
			return nil
		}
		lastErr = err
		// Only spawn-level errors are worth another attempt; a handshake
		// failure will repeat.
		if !IsKind(err, KindSpawn) {
			break
		}
	}

	inst.setFailed(lastErr.Error())
	return lastErr
}

func (c *Controller) startOnce(ctx context.Context, inst *ServerInstance, spec userstore.ServerSpec, env []string) error {
	var opts []HandleOption
	if c.opts.MaxInflightPerChild > 0 {
		opts = append(opts, WithMaxInflight(c.opts.MaxInflightPerChild))
	}

	h, err := Spawn(spec.Command, spec.Args, env, "", opts...)
	if err != nil {
		return err
	}

	client := NewClient(h)
	client.OnToolsChanged = inst.setTools

	hctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()

	if err := client.Initialize(hctx); err != nil {
		h.Shutdown(failedShutdownGrace)
		return c.handshakeError(h, err)
	}
	tools, err := client.ListTools(hctx)
	if err != nil {
		h.Shutdown(failedShutdownGrace)
		return c.handshakeError(h, err)
	}

	inst.setRunning(h, client, tools)
	go c.watch(inst, h)
	return nil
}

// handshakeError folds the stderr tail into the failure so the operator
// sees why the child never answered.
func (c *Controller) handshakeError(h *Handle, err error) error {
	if tail := strings.TrimSpace(h.StderrTail()); tail != "" {
		if len(tail) > 512 {
			tail = tail[len(tail)-512:]
		}
		return errf(KindHandshake, "%v (stderr: %s)", err, tail)
	}
	return err
}

// stopLocked tears down a live child; a no-op for stopped, failed, or
// pending instances. Caller holds opMu.
func (c *Controller) stopLocked(inst *ServerInstance) {
	inst.mu.Lock()
	h := inst.handle
	live := inst.status == StatusRunning || inst.status == StatusStarting
	if live && h != nil {
		inst.status = StatusStopping
	}
	inst.mu.Unlock()

	if !live || h == nil {
		return
	}

	code := h.Shutdown(c.opts.ShutdownGrace)
	inst.setStopped()
	logger.Infof("mcpserver %s stopped (exit code %d)", inst.Key, code)
}

// watch flips the instance to failed when its child dies out from under
// it. A stop or restart moves the instance out of running before shutting
// the child down, and a newer start installs a different handle, so
// failIfCurrent keeps this from clobbering a newer lifecycle.
func (c *Controller) watch(inst *ServerInstance, h *Handle) {
	<-h.Done()

	reason := fmt.Sprintf("child exited unexpectedly (exit code %d)", h.ExitCode())
	if tail := strings.TrimSpace(h.StderrTail()); tail != "" {
		if len(tail) > 512 {
			tail = tail[len(tail)-512:]
		}
		reason += "; stderr: " + tail
	}

	if inst.failIfCurrent(h, reason) {
		logger.Errorf("mcpserver %s: %s", inst.Key, reason)
	}
}
