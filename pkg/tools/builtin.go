package tools

// Built-in tool names.
const (
	BuiltinCreateTool  = "create_tool"
	BuiltinListTools   = "list_tools"
	BuiltinRemoveTool  = "remove_tool"
	BuiltinExecuteCode = "execute_code"
)

// registerBuiltins installs the four registry-management tools. Their
// handlers return a Result value so failures reach the remote service as
// ordinary tool output.
func registerBuiltins(r *Registry) {
	r.register(&Tool{
		Name:        BuiltinCreateTool,
		BuiltIn:     true,
		Description: "Create a new tool at runtime. The code is a JavaScript function body; the arguments object is available as 'args'. The tool becomes callable immediately.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Unique tool name, a valid identifier",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "What the tool does",
				},
				"parameters": map[string]any{
					"type":        "string",
					"description": "JSON schema for the tool's arguments, serialized as a JSON string",
				},
				"code": map[string]any{
					"type":        "string",
					"description": "JavaScript function body implementing the tool",
				},
				"async": map[string]any{
					"type":        "boolean",
					"description": "Whether the body is asynchronous and should be awaited",
				},
			},
			"required": []string{"name", "description", "code"},
		},
		Handler: func(args map[string]any) (any, error) {
			spec := CreateSpec{
				Name:        stringArg(args, "name"),
				Description: stringArg(args, "description"),
				Code:        stringArg(args, "code"),
				Parameters:  args["parameters"],
			}
			spec.Async, _ = args["async"].(bool)
			return r.Create(spec), nil
		},
	})

	r.register(&Tool{
		Name:        BuiltinListTools,
		BuiltIn:     true,
		Description: "List the dynamically created tools with their schemas and creation times.",
		Handler: func(args map[string]any) (any, error) {
			return Result{Success: true, Result: r.List()}, nil
		},
	})

	r.register(&Tool{
		Name:        BuiltinRemoveTool,
		BuiltIn:     true,
		Description: "Remove a dynamically created tool by name. Built-in tools cannot be removed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Name of the tool to remove",
				},
			},
			"required": []string{"name"},
		},
		Handler: func(args map[string]any) (any, error) {
			return r.Remove(stringArg(args, "name")), nil
		},
	})

	r.register(&Tool{
		Name:        BuiltinExecuteCode,
		BuiltIn:     true,
		Description: "Compile and immediately execute an anonymous piece of JavaScript, returning its result.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "JavaScript to execute",
				},
				"async": map[string]any{
					"type":        "boolean",
					"description": "Whether the code is asynchronous and should be awaited",
				},
			},
			"required": []string{"code"},
		},
		Handler: func(args map[string]any) (any, error) {
			async, _ := args["async"].(bool)
			return r.Eval(stringArg(args, "code"), async), nil
		},
	})
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
