// Package spec defines the environment configuration shape and the
// runtime entities derived from it: service descriptors, the four
// service categories, readiness blocks and the service status machine.
package spec

import "time"

// Category discriminates which orchestrator owns a unit.
type Category string

const (
	CategoryService   Category = "service"
	CategoryDatabase  Category = "database"
	CategoryMessaging Category = "messaging"
	CategoryStorage   Category = "storage"
)

// Mode discriminates the runner variant; it is never set directly but
// derived from which of Local/Container is present on a Unit.
type Mode string

const (
	ModeLocal     Mode = "local"
	ModeContainer Mode = "container"
)

// LogLevel mirrors the per-service logging level. The loader copies the
// configured text as is; it does not translate a boolean form into one
// of the levels below.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogLog   LogLevel = "log"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// PortBinding maps a container's internal port to a host port. A zero
// Host lets the engine assign a host port at start time; the assigned
// port is read back from the engine, not written into Host. A non-zero
// Host is bound as given.
type PortBinding struct {
	Host      int
	Container int
}

// VolumeMode is the mount mode for a VolumeBinding.
type VolumeMode string

const (
	VolumeRO VolumeMode = "ro"
	VolumeRW VolumeMode = "rw"
)

// VolumeBinding binds a host path into a container.
type VolumeBinding struct {
	HostPath      string
	ContainerPath string
	Mode          VolumeMode
}

// LocalBlock configures a native-subprocess unit.
type LocalBlock struct {
	Command    string
	WorkingDir string
	Args       []string
	Env        map[string]string
}

// ContainerBlock configures a container-backed unit.
type ContainerBlock struct {
	Image         string
	ContainerName string
	Ports         []PortBinding
	Volumes       []VolumeBinding
	Env           map[string]string
	EnvMapping    *EnvMapping
}

// EnvMapping names the env vars a dependent service expects to receive
// for this database/messaging unit's live connection coordinates.
type EnvMapping struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	URL      string
}

// Readiness configures the readiness probe for a unit. Exactly one of
// Command or Endpoint should be set. A unit with no Readiness block is
// treated as ready; a block with neither field set fails every probe.
type Readiness struct {
	Command  string
	Endpoint string
	Interval time.Duration
	Timeout  time.Duration
	Retries  int
}

// DatabaseOptions is the category-specific sub-block for database
// units: it names the isolation strategy and the seeding rules the
// DB State Manager and Seed Manager apply to this unit.
type DatabaseOptions struct {
	Isolation       string // "savepoint" | "schema" | "database" | "snapshot"
	RestoreStrategy string // "none" | "rollback" | "reset" | "snapshot"
	SeedCommand     string
	SeedMode        string // "once" | "per-file" | "per-test" | "custom"
	SeedWorkingDir  string
	SeedTimeout     time.Duration
}

// Unit is a service descriptor, tagged by Category. Exactly one of
// Local or Container must be non-nil.
type Unit struct {
	Name      string
	Type      string
	Category  Category
	Local     *LocalBlock
	Container *ContainerBlock
	Readiness *Readiness
	DependsOn []string
	Logging   LogLevel
	Database  *DatabaseOptions
}

// ModeOf reports the runner mode implied by which block is present.
func (u *Unit) ModeOf() Mode {
	if u.Container != nil {
		return ModeContainer
	}
	return ModeLocal
}

// TestModeConfig is forwarded to the Override Manager and the Clock
// Manager; enableFakeTimers is accepted for shape-compatibility but is
// not implemented by this core (no Clock Manager component is named).
type TestModeConfig struct {
	ControlPort      int
	OverrideEndpoint string
	EnableFakeTimers bool
}

// EndpointDiscovery is consumed by external tooling, not by the core;
// the shape is preserved so configuration files round-trip.
type EndpointDiscovery struct {
	Command string
	Timeout time.Duration
}

// Config is the sole input to environment setup.
type Config struct {
	Services  []Unit
	Databases []Unit
	Messaging []Unit
	Storages  []Unit

	TestTimeout     time.Duration
	SetupTimeout    time.Duration
	TeardownTimeout time.Duration

	EndpointDiscovery *EndpointDiscovery
	TestMode          *TestModeConfig
}

// AllUnits returns every unit across all four categories, in the order
// they appear in the configuration (services, databases, messaging,
// storages) — the deterministic tie-break order for the topological
// sort when no dependency path disambiguates two units.
func (c *Config) AllUnits() []Unit {
	all := make([]Unit, 0, len(c.Services)+len(c.Databases)+len(c.Messaging)+len(c.Storages))
	all = append(all, c.Services...)
	all = append(all, c.Databases...)
	all = append(all, c.Messaging...)
	all = append(all, c.Storages...)
	return all
}

// Status is the runtime service state machine.
type Status string

const (
	StatusPending  Status = "pending"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusStopped  Status = "stopped"
	StatusFailed   Status = "failed"
)
