// Package config loads the environment configuration object (§6) from
// a YAML file, expanding ${VAR}-style references against the process
// environment before parsing, the same way cmd/warren's apply command
// reads a resource file plus the teacher's go.mod-declared envsubst
// dependency for variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/a8m/envsubst"
	"github.com/cuemby/integr8/internal/spec"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML shape; durations are plain
// milliseconds per §6, converted to time.Duration on load.
type fileConfig struct {
	Services  []fileUnit `yaml:"services"`
	Databases []fileUnit `yaml:"databases"`
	Messaging []fileUnit `yaml:"messaging"`
	Storages  []fileUnit `yaml:"storages"`

	TestTimeout     int64 `yaml:"testTimeout"`
	SetupTimeout    int64 `yaml:"setupTimeout"`
	TeardownTimeout int64 `yaml:"teardownTimeout"`

	EndpointDiscovery *fileEndpointDiscovery `yaml:"endpointDiscovery"`
	TestMode          *fileTestMode          `yaml:"testMode"`
}

type fileTestMode struct {
	ControlPort      int    `yaml:"controlPort"`
	OverrideEndpoint string `yaml:"overrideEndpoint"`
	EnableFakeTimers bool   `yaml:"enableFakeTimers"`
}

type fileEndpointDiscovery struct {
	Command string `yaml:"command"`
	Timeout int64  `yaml:"timeout"`
}

type fileUnit struct {
	Name      string            `yaml:"name"`
	Type      string            `yaml:"type"`
	Local     *fileLocal        `yaml:"local"`
	Container *fileContainer    `yaml:"container"`
	Readiness *fileReadiness    `yaml:"readiness"`
	DependsOn []string          `yaml:"dependsOn"`
	Logging   string            `yaml:"logging"`
	Database  *fileDatabaseOpts `yaml:"database"`
}

type fileLocal struct {
	Command    string            `yaml:"command"`
	WorkingDir string            `yaml:"workingDir"`
	Args       []string          `yaml:"args"`
	Env        map[string]string `yaml:"env"`
}

type filePort struct {
	Host      int `yaml:"host"`
	Container int `yaml:"container"`
}

type fileVolume struct {
	HostPath      string `yaml:"hostPath"`
	ContainerPath string `yaml:"containerPath"`
	Mode          string `yaml:"mode"`
}

type fileEnvMapping struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	URL      string `yaml:"url"`
}

type fileContainer struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"containerName"`
	Ports         []filePort        `yaml:"ports"`
	Volumes       []fileVolume      `yaml:"volumes"`
	Env           map[string]string `yaml:"env"`
	EnvMapping    *fileEnvMapping   `yaml:"envMapping"`
}

type fileReadiness struct {
	Command  string `yaml:"command"`
	Endpoint string `yaml:"endpoint"`
	Interval int64  `yaml:"interval"`
	Timeout  int64  `yaml:"timeout"`
	Retries  int    `yaml:"retries"`
}

type fileDatabaseOpts struct {
	Isolation       string `yaml:"isolation"`
	RestoreStrategy string `yaml:"restoreStrategy"`
	SeedCommand     string `yaml:"seedCommand"`
	SeedMode        string `yaml:"seedMode"`
	SeedWorkingDir  string `yaml:"seedWorkingDir"`
	SeedTimeout     int64  `yaml:"seedTimeout"`
}

// Load reads, expands, and parses filename into a spec.Config.
func Load(filename string) (spec.Config, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return spec.Config{}, fmt.Errorf("read config %s: %w", filename, err)
	}

	expanded, err := envsubst.String(string(raw))
	if err != nil {
		return spec.Config{}, fmt.Errorf("expand config %s: %w", filename, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return spec.Config{}, fmt.Errorf("parse config %s: %w", filename, err)
	}

	return toSpec(fc), nil
}

func toSpec(fc fileConfig) spec.Config {
	cfg := spec.Config{
		Services:        toUnits(fc.Services, spec.CategoryService),
		Databases:       toUnits(fc.Databases, spec.CategoryDatabase),
		Messaging:       toUnits(fc.Messaging, spec.CategoryMessaging),
		Storages:        toUnits(fc.Storages, spec.CategoryStorage),
		TestTimeout:     ms(fc.TestTimeout),
		SetupTimeout:    ms(fc.SetupTimeout),
		TeardownTimeout: ms(fc.TeardownTimeout),
	}

	if fc.EndpointDiscovery != nil {
		cfg.EndpointDiscovery = &spec.EndpointDiscovery{
			Command: fc.EndpointDiscovery.Command,
			Timeout: ms(fc.EndpointDiscovery.Timeout),
		}
	}
	if fc.TestMode != nil {
		cfg.TestMode = &spec.TestModeConfig{
			ControlPort:      fc.TestMode.ControlPort,
			OverrideEndpoint: fc.TestMode.OverrideEndpoint,
			EnableFakeTimers: fc.TestMode.EnableFakeTimers,
		}
	}
	return cfg
}

func toUnits(units []fileUnit, category spec.Category) []spec.Unit {
	out := make([]spec.Unit, 0, len(units))
	for _, u := range units {
		out = append(out, toUnit(u, category))
	}
	return out
}

func toUnit(u fileUnit, category spec.Category) spec.Unit {
	unit := spec.Unit{
		Name:      u.Name,
		Type:      u.Type,
		Category:  category,
		DependsOn: u.DependsOn,
		Logging:   spec.LogLevel(u.Logging),
	}

	if u.Local != nil {
		unit.Local = &spec.LocalBlock{
			Command:    u.Local.Command,
			WorkingDir: u.Local.WorkingDir,
			Args:       u.Local.Args,
			Env:        u.Local.Env,
		}
	}
	if u.Container != nil {
		ports := make([]spec.PortBinding, 0, len(u.Container.Ports))
		for _, p := range u.Container.Ports {
			ports = append(ports, spec.PortBinding{Host: p.Host, Container: p.Container})
		}
		volumes := make([]spec.VolumeBinding, 0, len(u.Container.Volumes))
		for _, v := range u.Container.Volumes {
			volumes = append(volumes, spec.VolumeBinding{
				HostPath:      v.HostPath,
				ContainerPath: v.ContainerPath,
				Mode:          spec.VolumeMode(v.Mode),
			})
		}
		unit.Container = &spec.ContainerBlock{
			Image:         u.Container.Image,
			ContainerName: u.Container.ContainerName,
			Ports:         ports,
			Volumes:       volumes,
			Env:           u.Container.Env,
		}
		if u.Container.EnvMapping != nil {
			unit.Container.EnvMapping = &spec.EnvMapping{
				Host:     u.Container.EnvMapping.Host,
				Port:     u.Container.EnvMapping.Port,
				Username: u.Container.EnvMapping.Username,
				Password: u.Container.EnvMapping.Password,
				Database: u.Container.EnvMapping.Database,
				URL:      u.Container.EnvMapping.URL,
			}
		}
	}
	if u.Readiness != nil {
		unit.Readiness = &spec.Readiness{
			Command:  u.Readiness.Command,
			Endpoint: u.Readiness.Endpoint,
			Interval: ms(u.Readiness.Interval),
			Timeout:  ms(u.Readiness.Timeout),
			Retries:  u.Readiness.Retries,
		}
	}
	if u.Database != nil {
		unit.Database = &spec.DatabaseOptions{
			Isolation:       u.Database.Isolation,
			RestoreStrategy: u.Database.RestoreStrategy,
			SeedCommand:     u.Database.SeedCommand,
			SeedMode:        u.Database.SeedMode,
			SeedWorkingDir:  u.Database.SeedWorkingDir,
			SeedTimeout:     ms(u.Database.SeedTimeout),
		}
	}
	return unit
}

func ms(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
