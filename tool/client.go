package tool

// Client-side dashboard tools. These are descriptors only: when the model
// requests one of them the orchestration loop hands the call back to the
// caller instead of executing it, because the dashboard lives on the client.

var displayTypes = []string{
	"line", "bar", "pie", "row", "area", "table", "scatter",
	"map", "funnel", "combo", "waterfall", "trend", "progress",
	"gauge", "number", "pivot table",
}

// ClientTools returns the built-in client-side tool descriptors.
func ClientTools() []*Tool {
	return []*Tool{
		{
			Name:        "list_charts",
			Description: "For dashboard operations only. Retrieves a list of all available charts in the collection.",
			Locus:       LocusClient,
		},
		{
			Name:        "load_chart",
			Description: "For dashboard operations only. Retrieves the current configuration and metadata of an existing chart.",
			Locus:       LocusClient,
			Parameters: []Parameter{
				{Name: "chart_id", Type: "integer", Description: "ID of the chart to load", Required: true},
			},
		},
		{
			Name:        "create_chart",
			Description: "For dashboard operations only. Creates a chart and adds it to the dashboard.",
			Locus:       LocusClient,
			Parameters: []Parameter{
				{Name: "sql", Type: "string", Description: "SQL query for the chart", Required: true},
				{Name: "name", Type: "string", Description: "Clear name for the chart", Required: true},
				{Name: "description", Type: "string", Description: "Detailed description of the chart", Required: true},
				{Name: "explanation", Type: "string", Description: "Explanation of what the query does", Required: true},
				{Name: "display_type", Type: "string", Description: "Type of visualization", Required: true, Enum: displayTypes},
				{Name: "viz_settings", Type: "object", Description: "Complete visualization settings", Required: true},
				{Name: "size_x", Type: "integer", Description: "Width in dashboard grid units (1-12)", Required: true},
				{Name: "size_y", Type: "integer", Description: "Height in dashboard grid units", Required: true},
				{Name: "row", Type: "integer", Description: "Row position on the dashboard", Required: true},
				{Name: "col", Type: "integer", Description: "Column position on the dashboard (0-11)", Required: true},
			},
		},
		{
			Name:        "update_chart",
			Description: "For dashboard operations only. Update an existing chart's properties.",
			Locus:       LocusClient,
			Parameters: []Parameter{
				{Name: "card_id", Type: "integer", Description: "ID of the chart to update", Required: true},
				{Name: "sql", Type: "string", Description: "SQL query for the chart", Required: true},
				{Name: "name", Type: "string", Description: "Clear name for the chart", Required: true},
				{Name: "description", Type: "string", Description: "Detailed description of the chart", Required: true},
				{Name: "explanation", Type: "string", Description: "Explanation of what the query does", Required: true},
				{Name: "display_type", Type: "string", Description: "Type of visualization", Required: true, Enum: displayTypes},
				{Name: "viz_settings", Type: "object", Description: "Complete visualization settings", Required: true},
			},
		},
		{
			Name:        "delete_chart",
			Description: "For dashboard operations only. Permanently removes a chart from the dashboard and the collection.",
			Locus:       LocusClient,
			Parameters: []Parameter{
				{Name: "chart_id", Type: "integer", Description: "ID of the chart to delete", Required: true},
			},
		},
		{
			Name:        "rearrange_dashboard",
			Description: "For dashboard operations only. Modifies the layout and positioning of all dashboard elements.",
			Locus:       LocusClient,
			Parameters: []Parameter{
				{Name: "layout", Type: "array", Description: "New layout entries with id, size_x, size_y, row, col", Required: true},
			},
		},
		{
			Name:        "add_markdown",
			Description: "For dashboard operations only. Adds formatted text content to the dashboard.",
			Locus:       LocusClient,
			Parameters: []Parameter{
				{Name: "text", Type: "string", Description: "Markdown text content", Required: true},
				{Name: "size_x", Type: "integer", Description: "Width in dashboard grid units (1-12)", Required: true},
				{Name: "size_y", Type: "integer", Description: "Height in dashboard grid units", Required: true},
				{Name: "row", Type: "integer", Description: "Row position on the dashboard", Required: true},
				{Name: "col", Type: "integer", Description: "Column position on the dashboard (0-11)", Required: true},
			},
		},
		{
			Name:        "get_dashboard_cards",
			Description: "For dashboard operations only. Retrieves a list of all cards on the dashboard.",
			Locus:       LocusClient,
		},
	}
}

// RegisterClientTools adds the built-in client-side tools to a registry.
func RegisterClientTools(registry *Registry) error {
	for _, t := range ClientTools() {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}
