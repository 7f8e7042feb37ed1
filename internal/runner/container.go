package runner

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cuemby/integr8/internal/connstring"
	"github.com/cuemby/integr8/internal/errs"
	"github.com/cuemby/integr8/internal/health"
	"github.com/cuemby/integr8/internal/spec"
	dockercontainer "github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// ContainerRunner starts and supervises a single container via the
// testcontainers-go engine client. It is the container-engine boundary
// for both application services and container-backed databases.
type ContainerRunner struct {
	unit   spec.Unit
	logger zerolog.Logger

	mu        sync.Mutex
	container testcontainers.Container
	connStrs  map[string]string
}

// NewContainerRunner builds a ContainerRunner for unit.
func NewContainerRunner(unit spec.Unit, logger zerolog.Logger) *ContainerRunner {
	return &ContainerRunner{unit: unit, logger: logger}
}

func (r *ContainerRunner) Start(ctx context.Context, fast bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.unit.Container

	exposed := make([]string, 0, len(c.Ports))
	bindings := nat.PortMap{}
	for _, p := range c.Ports {
		port := nat.Port(strconv.Itoa(p.Container) + "/tcp")
		exposed = append(exposed, string(port))
		if p.Host != 0 {
			bindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(p.Host)}}
		}
	}

	mounts := make([]testcontainers.ContainerMount, 0, len(c.Volumes))
	for _, v := range c.Volumes {
		mode := testcontainers.ContainerMountTarget(v.ContainerPath)
		mounts = append(mounts, testcontainers.BindMount(v.HostPath, mode))
	}

	req := testcontainers.ContainerRequest{
		Image:        c.Image,
		Name:         c.ContainerName,
		ExposedPorts: exposed,
		Env:          c.Env,
		Mounts:       mounts,
	}
	if len(bindings) > 0 {
		req.HostConfigModifier = func(hc *dockercontainer.HostConfig) {
			hc.PortBindings = bindings
		}
	}

	if !fast && r.unit.Readiness != nil {
		strategy, err := waitStrategyFor(r.unit.Readiness, c.Ports)
		if err != nil {
			return errs.RunnerFailure(r.unit.Name, "start", err)
		}
		req.WaitingFor = strategy
	}

	// Remove any prior container with the same configured name before
	// creating a new one, mirroring "force recreate" semantics.
	if c.ContainerName != "" {
		removeByName(ctx, c.ContainerName, r.logger)
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return errs.RunnerFailure(r.unit.Name, "start", err)
	}
	r.container = container

	connStrs, err := r.buildConnectionStrings(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("connection-string propagation failed")
	}
	r.connStrs = connStrs

	return nil
}

func (r *ContainerRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	container := r.container
	r.mu.Unlock()

	if container == nil {
		return nil
	}
	if err := container.Terminate(ctx); err != nil {
		r.logger.Warn().Err(err).Str("service", r.unit.Name).Msg("container stop leaked a resource")
	}
	return nil
}

func (r *ContainerRunner) IsReady(ctx context.Context) bool {
	r.mu.Lock()
	container := r.container
	r.mu.Unlock()

	if container == nil {
		return false
	}
	if r.unit.Readiness == nil {
		r.logger.Warn().Str("service", r.unit.Name).Msg("no readiness configured, assuming ready")
		return true
	}

	checker, err := r.buildChecker(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("could not build readiness checker")
		return false
	}
	return health.Probe(ctx, checker, health.Config{
		Interval: r.unit.Readiness.Interval,
		Timeout:  r.unit.Readiness.Timeout,
		Retries:  r.unit.Readiness.Retries,
	}, r.logger)
}

func (r *ContainerRunner) ConnectionStrings() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connStrs
}

func (r *ContainerRunner) buildChecker(ctx context.Context) (health.Checker, error) {
	ready := r.unit.Readiness
	if ready.Endpoint != "" {
		host, err := r.container.Host(ctx)
		if err != nil {
			return nil, err
		}
		port, err := r.canonicalMappedPort(ctx)
		if err != nil {
			return nil, err
		}
		url := fmt.Sprintf("http://%s:%s%s", host, port.Port(), ready.Endpoint)
		return health.NewHTTPChecker(url), nil
	}

	c := health.NewExecChecker(strings.Fields(ready.Command))
	container := r.container
	c.Run = func(ctx context.Context, command []string) error {
		exitCode, _, err := container.Exec(ctx, command)
		if err != nil {
			return err
		}
		if exitCode != 0 {
			return fmt.Errorf("exec exited %d", exitCode)
		}
		return nil
	}
	return c, nil
}

// canonicalMappedPort returns the mapped host port for the first
// configured port binding, which is the unit's canonical internal port.
func (r *ContainerRunner) canonicalMappedPort(ctx context.Context) (nat.Port, error) {
	if len(r.unit.Container.Ports) == 0 {
		return "", fmt.Errorf("unit %q has no exposed ports", r.unit.Name)
	}
	internal := nat.Port(strconv.Itoa(r.unit.Container.Ports[0].Container) + "/tcp")
	return r.container.MappedPort(ctx, internal)
}

// buildConnectionStrings implements §4.3 connection-string propagation
// for this unit, if it carries an envMapping block.
func (r *ContainerRunner) buildConnectionStrings(ctx context.Context) (map[string]string, error) {
	c := r.unit.Container
	if c.EnvMapping == nil {
		return nil, nil
	}

	host, err := r.container.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := r.canonicalMappedPort(ctx)
	if err != nil {
		return nil, err
	}

	return connstring.Build(connstring.Input{
		Type:       r.unit.Type,
		Host:       host,
		Port:       port.Port(),
		EnvMapping: connstring.Mapping(*c.EnvMapping),
		Env:        c.Env,
	}), nil
}

func waitStrategyFor(r *spec.Readiness, ports []spec.PortBinding) (wait.Strategy, error) {
	if r.Endpoint != "" {
		if len(ports) == 0 {
			return nil, fmt.Errorf("readiness endpoint configured without an exposed port")
		}
		internal := nat.Port(strconv.Itoa(ports[0].Container) + "/tcp")
		return wait.ForHTTP(r.Endpoint).WithPort(internal).WithStartupTimeout(r.Timeout), nil
	}
	if r.Command != "" {
		return wait.ForExec(strings.Fields(r.Command)).WithStartupTimeout(r.Timeout), nil
	}
	return wait.ForLog("").WithStartupTimeout(0), nil
}

// removeByName force-removes any prior container sharing name, so a
// restarted environment never collides with a stale container left
// over from a previous run.
func removeByName(ctx context.Context, name string, logger zerolog.Logger) {
	cli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		logger.Warn().Err(err).Msg("could not reach container engine to pre-remove stale container")
		return
	}
	defer cli.Close()

	if err := cli.ContainerRemove(ctx, name, dockercontainer.RemoveOptions{Force: true}); err != nil {
		logger.Debug().Err(err).Str("container", name).Msg("no stale container to remove")
	}
}
