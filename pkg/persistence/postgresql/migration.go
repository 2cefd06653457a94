package postgresql

// migrations returns the numbered schema migrations. Node graphs, run
// logs and action inputs live in JSONB columns; the relational surface
// stays at the entity level.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				repo_id TEXT NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				next_version TEXT NOT NULL DEFAULT '',
				variables JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_repo_id ON workflows(repo_id) WHERE deleted_at IS NULL;

			CREATE TABLE IF NOT EXISTS actions (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				script TEXT NOT NULL,
				inputs JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_actions_name ON actions(name);

			CREATE TABLE IF NOT EXISTS repositories (
				id TEXT PRIMARY KEY,
				path TEXT NOT NULL,
				owner TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL DEFAULT '',
				default_branch TEXT NOT NULL DEFAULT '',
				build_system TEXT NOT NULL DEFAULT '',
				latest_tag TEXT NOT NULL DEFAULT '',
				cloned_at TIMESTAMP WITH TIME ZONE
			);

			CREATE TABLE IF NOT EXISTS run_records (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL,
				status TEXT NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				log JSONB NOT NULL DEFAULT '[]'
			);

			CREATE INDEX IF NOT EXISTS idx_run_records_workflow ON run_records(workflow_id, started_at DESC);
		`,
	}
}
