package postgres

const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL CHECK(length(name) <= 200),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);

CREATE TABLE IF NOT EXISTS domains (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    name TEXT NOT NULL CHECK(length(name) <= 200),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_domains_project ON domains(project_id);

CREATE TABLE IF NOT EXISTS canonical_tasks (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
    canonical_name TEXT NOT NULL CHECK(length(canonical_name) <= 200),
    description TEXT,
    notes TEXT,
    version TEXT,
    measure_type TEXT,
    measure_unit TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_canonical_scope ON canonical_tasks(user_id, domain_id, version);
CREATE INDEX IF NOT EXISTS idx_canonical_project ON canonical_tasks(project_id);

CREATE TABLE IF NOT EXISTS task_instances (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    domain_id TEXT NOT NULL REFERENCES domains(id) ON DELETE CASCADE,
    canonical_task_id TEXT REFERENCES canonical_tasks(id) ON DELETE SET NULL,
    task_name TEXT NOT NULL CHECK(length(task_name) <= 200),
    description TEXT,
    notes TEXT,
    version TEXT,
    measure_type TEXT,
    measure_unit TEXT,
    target_value DOUBLE PRECISION,
    timebox_value DOUBLE PRECISION,
    timebox_unit TEXT,
    scheduled_date TEXT,
    status TEXT NOT NULL DEFAULT 'pending',
    completed_at TIMESTAMPTZ,
    actual_time_spent DOUBLE PRECISION,
    actual_work_completed TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_instances_project_date ON task_instances(project_id, scheduled_date);
CREATE INDEX IF NOT EXISTS idx_instances_canonical ON task_instances(canonical_task_id);
CREATE INDEX IF NOT EXISTS idx_instances_created_at ON task_instances(created_at);
`
