package postgresql

// migrations returns the ordered schema migrations for the approval workflow
// store. is_success is kept nullable: NULL = pending, true = approved,
// false = rejected, the collaborator-owned tri-state shape.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS wf_templates (
				id UUID PRIMARY KEY,
				display_name VARCHAR(255) NOT NULL,
				doc_type_code VARCHAR(64) NOT NULL,
				org_id VARCHAR(64) NOT NULL DEFAULT '',
				created_by VARCHAR(64) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_wf_templates_doc_type
				ON wf_templates (doc_type_code) WHERE deleted_at IS NULL;

			CREATE TABLE IF NOT EXISTS wf_template_nodes (
				id UUID PRIMARY KEY,
				template_id UUID NOT NULL REFERENCES wf_templates(id) ON DELETE CASCADE,
				next_id UUID,
				ord INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX IF NOT EXISTS idx_wf_template_nodes_template
				ON wf_template_nodes (template_id);

			CREATE TABLE IF NOT EXISTS wf_template_node_items (
				id UUID PRIMARY KEY,
				node_id UUID NOT NULL REFERENCES wf_template_nodes(id) ON DELETE CASCADE,
				operator_id VARCHAR(64) NOT NULL,
				operator_display_name VARCHAR(255) NOT NULL DEFAULT '',
				operation_kind INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX IF NOT EXISTS idx_wf_template_node_items_node
				ON wf_template_node_items (node_id);

			CREATE TABLE IF NOT EXISTS wf_instances (
				id UUID PRIMARY KEY,
				doc_id VARCHAR(64) NOT NULL,
				template_id UUID NOT NULL,
				version INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_wf_instances_doc
				ON wf_instances (doc_id);

			CREATE TABLE IF NOT EXISTS wf_instance_nodes (
				id UUID PRIMARY KEY,
				instance_id UUID NOT NULL REFERENCES wf_instances(id) ON DELETE CASCADE,
				template_node_id UUID NOT NULL,
				arrival_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_wf_instance_nodes_instance
				ON wf_instance_nodes (instance_id);

			CREATE TABLE IF NOT EXISTS wf_instance_node_items (
				id UUID PRIMARY KEY,
				node_id UUID NOT NULL REFERENCES wf_instance_nodes(id) ON DELETE CASCADE,
				operator_id VARCHAR(64) NOT NULL,
				operator_display_name VARCHAR(255) NOT NULL DEFAULT '',
				operation_kind INTEGER NOT NULL DEFAULT 0,
				comment TEXT NOT NULL DEFAULT '',
				is_success BOOLEAN
			);

			CREATE INDEX IF NOT EXISTS idx_wf_instance_node_items_node
				ON wf_instance_node_items (node_id);

			CREATE INDEX IF NOT EXISTS idx_wf_instance_node_items_operator
				ON wf_instance_node_items (operator_id);
		`,
	}
}
