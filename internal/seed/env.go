package seed

import "os"

// buildSeedEnv composes the seed subprocess environment: the process
// env, the database's connection strings, and WORKER_ID/NODE_ENV=test.
func buildSeedEnv(connEnv map[string]string, workerID string) []string {
	out := os.Environ()
	for k, v := range connEnv {
		out = append(out, k+"="+v)
	}
	out = append(out, "WORKER_ID="+workerID, "NODE_ENV=test")
	return out
}
