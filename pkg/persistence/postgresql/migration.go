package postgresql

// migrations returns the versioned schema for graph storage. Nodes and edges
// live in child tables so partial updates stay cheap and the editor can page
// them independently.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS graphs (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				owner TEXT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_graphs_owner ON graphs(owner);
		`,
		2: `
			CREATE TABLE IF NOT EXISTS graph_nodes (
				graph_id TEXT NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
				id TEXT NOT NULL,
				kind TEXT NOT NULL,
				label TEXT NOT NULL DEFAULT '',
				position_x INTEGER NOT NULL DEFAULT 0,
				position_y INTEGER NOT NULL DEFAULT 0,
				config JSONB,
				PRIMARY KEY (graph_id, id)
			);

			CREATE TABLE IF NOT EXISTS graph_edges (
				graph_id TEXT NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
				id TEXT NOT NULL,
				source_node_id TEXT NOT NULL,
				source_port TEXT NOT NULL,
				target_node_id TEXT NOT NULL,
				target_port TEXT NOT NULL,
				condition TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (graph_id, id)
			);

			CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges(graph_id, target_node_id);
		`,
	}
}
