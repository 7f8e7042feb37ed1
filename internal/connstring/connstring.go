// Package connstring implements connection-string propagation: mapping
// a container-backed database's live endpoint coordinates into the
// env-var names its dependent services expect (spec §4.3).
package connstring

import "fmt"

// Mapping names the env vars a dependent service wants populated for
// this unit's connection coordinates. Any field left empty is skipped.
type Mapping struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	URL      string
}

// Input is everything Build needs to compute one unit's contribution
// to the env-var-name → value table.
type Input struct {
	Type       string
	Host       string
	Port       string
	EnvMapping Mapping
	// Env is the unit's own container environment, used to look up the
	// credentials actually baked into the image (POSTGRES_USER, ...).
	Env map[string]string
}

// credentialKeys names the well-known env vars each database type uses
// to configure its own credentials, and the URL scheme for that type.
type credentialKeys struct {
	user, pass, db string
	scheme         string
}

var typeCredentials = map[string]credentialKeys{
	"postgres":  {user: "POSTGRES_USER", pass: "POSTGRES_PASSWORD", db: "POSTGRES_DB", scheme: "postgresql"},
	"postgresql": {user: "POSTGRES_USER", pass: "POSTGRES_PASSWORD", db: "POSTGRES_DB", scheme: "postgresql"},
	"mysql":      {user: "MYSQL_USER", pass: "MYSQL_PASSWORD", db: "MYSQL_DATABASE", scheme: "mysql"},
	"mongo":      {user: "MONGO_INITDB_ROOT_USERNAME", pass: "MONGO_INITDB_ROOT_PASSWORD", db: "MONGO_INITDB_DATABASE", scheme: "mongodb"},
	"mongodb":    {user: "MONGO_INITDB_ROOT_USERNAME", pass: "MONGO_INITDB_ROOT_PASSWORD", db: "MONGO_INITDB_DATABASE", scheme: "mongodb"},
}

const fallback = "test"

func lookup(env map[string]string, key string) string {
	if v, ok := env[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Build computes the flat env-var-name → value map for one unit.
func Build(in Input) map[string]string {
	creds := typeCredentials[in.Type]

	username := lookup(in.Env, creds.user)
	password := lookup(in.Env, creds.pass)
	database := lookup(in.Env, creds.db)

	out := make(map[string]string, 5)
	m := in.EnvMapping

	if m.Host != "" {
		out[m.Host] = in.Host
	}
	if m.Port != "" {
		out[m.Port] = in.Port
	}
	if m.Username != "" {
		out[m.Username] = username
	}
	if m.Password != "" {
		out[m.Password] = password
	}
	if m.Database != "" {
		out[m.Database] = database
	}
	if m.URL != "" {
		scheme := creds.scheme
		if scheme == "" {
			scheme = in.Type
		}
		out[m.URL] = fmt.Sprintf("%s://%s:%s@%s:%s/%s", scheme, username, password, in.Host, in.Port, database)
	}

	return out
}
