package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Tasks own lifecycle and timer state; the timer columns are only
			-- written through conditional updates.
			CREATE TABLE tasks (
				workspace_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('backlog', 'in_progress', 'internal_review', 'client_review', 'approved')),
				priority VARCHAR(50) NOT NULL DEFAULT '',
				assignee_id VARCHAR(255) NOT NULL DEFAULT '',
				time_spent_minutes INTEGER NOT NULL DEFAULT 0 CHECK (time_spent_minutes >= 0),
				active_timer_start TIMESTAMP WITH TIME ZONE,
				active_timer_user_id VARCHAR(255) NOT NULL DEFAULT '',
				internal_revision_count INTEGER NOT NULL DEFAULT 0,
				client_view_status VARCHAR(50) CHECK (client_view_status IN ('pending', 'approved', 'rejected')),
				last_client_feedback TEXT,
				custom_fields JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (workspace_id, id)
			);

			CREATE INDEX idx_tasks_status ON tasks(workspace_id, status);
			CREATE INDEX idx_tasks_assignee ON tasks(workspace_id, assignee_id);
			CREATE INDEX idx_tasks_active_timer ON tasks(active_timer_start) WHERE active_timer_start IS NOT NULL;

			CREATE TABLE timer_sessions (
				seq BIGSERIAL PRIMARY KEY,
				id VARCHAR(255) NOT NULL UNIQUE,
				workspace_id VARCHAR(255) NOT NULL,
				task_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				duration_minutes INTEGER NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				stopped_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_timer_sessions_task ON timer_sessions(workspace_id, task_id);

			CREATE TABLE automation_rules (
				workspace_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				trigger_event VARCHAR(50) NOT NULL,
				filter_groups JSONB NOT NULL,
				action_chain JSONB NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (workspace_id, id)
			);

			CREATE INDEX idx_automation_rules_trigger ON automation_rules(workspace_id, trigger_event, is_active);
		`,
		2: `
			CREATE TABLE activity_log (
				seq BIGSERIAL PRIMARY KEY,
				id VARCHAR(255) NOT NULL UNIQUE,
				workspace_id VARCHAR(255) NOT NULL,
				record_id VARCHAR(255) NOT NULL,
				action_type VARCHAR(100) NOT NULL,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_activity_log_record ON activity_log(workspace_id, record_id);

			CREATE TABLE comments (
				seq BIGSERIAL PRIMARY KEY,
				id VARCHAR(255) NOT NULL UNIQUE,
				workspace_id VARCHAR(255) NOT NULL,
				task_id VARCHAR(255) NOT NULL,
				author_id VARCHAR(255) NOT NULL,
				content TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_comments_task ON comments(workspace_id, task_id);
		`,
	}
}
