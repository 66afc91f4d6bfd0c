package sqlite

// Timestamps are TEXT in a fixed-width UTC layout so they compare lexically.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE tasks (
				workspace_id TEXT NOT NULL,
				id TEXT NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL CHECK (status IN ('backlog', 'in_progress', 'internal_review', 'client_review', 'approved')),
				priority TEXT NOT NULL DEFAULT '',
				assignee_id TEXT NOT NULL DEFAULT '',
				time_spent_minutes INTEGER NOT NULL DEFAULT 0 CHECK (time_spent_minutes >= 0),
				active_timer_start TEXT,
				active_timer_user_id TEXT NOT NULL DEFAULT '',
				internal_revision_count INTEGER NOT NULL DEFAULT 0,
				client_view_status TEXT CHECK (client_view_status IN ('pending', 'approved', 'rejected')),
				last_client_feedback TEXT,
				custom_fields TEXT,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (workspace_id, id)
			);

			CREATE INDEX idx_tasks_status ON tasks(workspace_id, status);
			CREATE INDEX idx_tasks_assignee ON tasks(workspace_id, assignee_id);
			CREATE INDEX idx_tasks_active_timer ON tasks(active_timer_start) WHERE active_timer_start IS NOT NULL;

			CREATE TABLE timer_sessions (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				workspace_id TEXT NOT NULL,
				task_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				duration_minutes INTEGER NOT NULL,
				started_at TEXT NOT NULL,
				stopped_at TEXT NOT NULL
			);

			CREATE INDEX idx_timer_sessions_task ON timer_sessions(workspace_id, task_id);

			CREATE TABLE automation_rules (
				workspace_id TEXT NOT NULL,
				id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				trigger_event TEXT NOT NULL,
				filter_groups TEXT NOT NULL,
				action_chain TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_by TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (workspace_id, id)
			);

			CREATE INDEX idx_automation_rules_trigger ON automation_rules(workspace_id, trigger_event, is_active);
		`,
		2: `
			CREATE TABLE activity_log (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				workspace_id TEXT NOT NULL,
				record_id TEXT NOT NULL,
				action_type TEXT NOT NULL,
				metadata TEXT,
				created_at TEXT NOT NULL
			);

			CREATE INDEX idx_activity_log_record ON activity_log(workspace_id, record_id);

			CREATE TABLE comments (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				workspace_id TEXT NOT NULL,
				task_id TEXT NOT NULL,
				author_id TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at TEXT NOT NULL
			);

			CREATE INDEX idx_comments_task ON comments(workspace_id, task_id);
		`,
	}
}
