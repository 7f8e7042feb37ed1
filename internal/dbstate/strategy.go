// Package dbstate implements the four database isolation primitives —
// savepoints, schemas, databases, and snapshots — plus the transaction
// and cleanup operations the Database Manager builds on.
package dbstate

// Strategy names the isolation mode a database unit is configured
// with. The Manager itself implements every primitive regardless of
// Strategy; Strategy only decides which primitive a higher-level
// snapshot/restore call dispatches to (§4.8).
type Strategy string

const (
	StrategySavepoint Strategy = "savepoint"
	StrategySchema    Strategy = "schema"
	StrategyDatabase  Strategy = "database"
	StrategySnapshot  Strategy = "snapshot"
)
