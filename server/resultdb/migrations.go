package resultdb

import (
	"github.com/BurntSushi/migration"
	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/logs"
)

func Migrations(log logs.Log, driver string) []migration.Migrator {
	migs := []migration.Migrator{}
	idx := 0

	idType := "INTEGER PRIMARY KEY"
	if driver == "postgres" {
		idType = "BIGSERIAL PRIMARY KEY"
	}

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		CREATE TABLE result(
			id `+idType+`,
			source TEXT NOT NULL,
			frame_id BIGINT NOT NULL,
			time BIGINT NOT NULL,
			forward_ms REAL NOT NULL,
			analysis_ms REAL NOT NULL,
			avg_forward_ms REAL NOT NULL,
			top1_class TEXT NOT NULL,
			top1_score REAL NOT NULL,
			top TEXT
		);
		CREATE INDEX idx_result_time ON result(time);
	`))

	migs = append(migs, dbh.MakeMigrationFromSQL(log, &idx,
		`
		ALTER TABLE result ADD COLUMN mean_luma REAL NOT NULL DEFAULT 0;
		CREATE INDEX idx_result_top1_class ON result(top1_class);
	`))

	return migs
}
