package server

// Tool describes one tool in the tools/list response.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func integerProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func booleanProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

// splitsProp is the schema of partition.Fractions.
var splitsProp = map[string]interface{}{
	"type":        "object",
	"description": "Split fractions; they must add up to 1. Default 0.7/0.2/0.1",
	"properties": map[string]interface{}{
		"train":      map[string]interface{}{"type": "number"},
		"validation": map[string]interface{}{"type": "number"},
		"test":       map[string]interface{}{"type": "number"},
	},
}

var modeProp = map[string]interface{}{
	"type":        "string",
	"enum":        []string{"REGIONS", "SYMBOLS_IN_REGIONS", "SYMBOLS_IN_IMAGES"},
	"description": "What becomes a detection object. Default REGIONS",
}

var splitProp = map[string]interface{}{
	"type":        "string",
	"enum":        []string{"train", "validation", "test"},
	"description": "Dataset split. Default train",
}

// GetToolDefinitions returns the dataset tools in display order.
func GetToolDefinitions() []Tool {
	return []Tool{
		// Package
		{
			Name:        "package_inspect",
			Description: "Load a MuRET package (dictionary.json plus files/) and summarize its images, pages, regions, symbols and dictionaries. Lists labels missing from the dictionaries and files that could not be read.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":    stringProp("Absolute path to the package folder, or to a single package JSON file"),
					"strict":  booleanProp("Fail when a label is missing from its dictionary"),
					"workers": integerProp("Worker pool size. Default: number of CPUs"),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "package_fetch",
			Description: "Download every image of a MuRET package into the cache folder so that later transcoding runs do not hit the network. Unreachable images are listed.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":            stringProp("Absolute path to the package folder"),
					"cache":           stringProp("Cache folder for downloaded images"),
					"images_root":     stringProp("Read images from this folder by filename instead of their URL"),
					"workers":         integerProp("Worker pool size. Default: number of CPUs"),
					"timeout_seconds": map[string]interface{}{"type": "number", "description": "Timeout of a single download. Default 10"},
					"no_throttle":     booleanProp("Do not pause after downloads from rate-limited hosts"),
				},
				"required": []string{"path", "cache"},
			},
		},

		// Geometry
		{
			Name:        "bbox_convert",
			Description: "Convert a bounding box between yolo (normalized center/size), coco (x, y, width, height) and pascal (x1, y1, x2, y2). Image width and height are needed when either side is yolo.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"box": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "number"},
						"minItems":    4,
						"maxItems":    4,
						"description": "The four coordinates in the source format",
					},
					"from":   map[string]interface{}{"type": "string", "enum": []string{"yolo", "coco", "pascal"}},
					"to":     map[string]interface{}{"type": "string", "enum": []string{"yolo", "coco", "pascal"}},
					"width":  integerProp("Image width in pixels"),
					"height": integerProp("Image height in pixels"),
				},
				"required": []string{"box", "from", "to"},
			},
		},
		{
			Name:        "partition_plan",
			Description: "Compute how many samples each split receives for a given sample count and split fractions.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"count":  integerProp("Number of samples"),
					"splits": splitsProp,
				},
				"required": []string{"count"},
			},
		},

		// Dataset
		{
			Name:        "dataset_transcode",
			Description: "Convert a MuRET package into a YOLO dataset: images/ and labels/ per split, dataset.yaml and the class dictionaries. Returns the run report with dropped images and warnings.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"input":       stringProp("Absolute path to the package folder"),
					"output":      stringProp("Dataset output folder"),
					"cache":       stringProp("Cache folder for downloads and staff crops. Optional"),
					"images_root": stringProp("Read images from this folder by filename instead of their URL"),
					"mode":        modeProp,
					"splits":      splitsProp,
					"width":       integerProp("Resize width. 0 keeps the original"),
					"height":      integerProp("Resize height. 0 keeps the original"),
					"workers":     integerProp("Worker pool size. Default: number of CPUs"),
					"strict":      booleanProp("Fail when a label is missing from its dictionary"),
					"no_throttle": booleanProp("Do not pause after downloads from rate-limited hosts"),
				},
				"required": []string{"input", "output"},
			},
		},
		{
			Name:        "dataset_list",
			Description: "List the sample names of one split of a YOLO dataset.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":  stringProp("Dataset folder"),
					"split": splitProp,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "dataset_preview",
			Description: "Draw the labelled boxes of one dataset sample on its image, one colour per class with class-name captions, and return it as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   stringProp("Dataset folder"),
					"split":  splitProp,
					"sample": stringProp("Sample name, as returned by dataset_list"),
				},
				"required": []string{"path", "sample"},
			},
		},
	}
}

// handleToolsList answers tools/list.
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
