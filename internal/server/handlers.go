package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ironsheep/muret2yolo/internal/bbox"
	"github.com/ironsheep/muret2yolo/internal/config"
	"github.com/ironsheep/muret2yolo/internal/errs"
	"github.com/ironsheep/muret2yolo/internal/imaging"
	"github.com/ironsheep/muret2yolo/internal/muret"
	"github.com/ironsheep/muret2yolo/internal/partition"
	"github.com/ironsheep/muret2yolo/internal/yolo"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "package_inspect", "dataset_transcode").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall runs the named tool and wraps its result as text content.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000,
// or -32602 when the arguments are invalid.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		if errs.IsInput(err) {
			return s.errorResponse(req.ID, -32602, "Invalid arguments", err.Error())
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Package
	case "package_inspect":
		return s.handlePackageInspect(args)
	case "package_fetch":
		return s.handlePackageFetch(args)

	// Geometry
	case "bbox_convert":
		return s.handleBBoxConvert(args)
	case "partition_plan":
		return s.handlePartitionPlan(args)

	// Dataset
	case "dataset_transcode":
		return s.handleDatasetTranscode(args)
	case "dataset_list":
		return s.handleDatasetList(args)
	case "dataset_preview":
		return s.handleDatasetPreview(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	e := &MCPError{Code: code, Message: message}
	if data != "" {
		e.Data = data
	}
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   e,
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Package Handlers ===

type packageArgs struct {
	Path    string `json:"path"`
	Strict  bool   `json:"strict"`
	Workers int    `json:"workers"`
}

type packageInspectResult struct {
	*muret.Summary
	Folder string `json:"folder"`
}

func (s *Server) handlePackageInspect(args json.RawMessage) (interface{}, error) {
	var a packageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	run := config.Default()
	run.Input, run.StrictLabels = a.Path, a.Strict
	if a.Workers > 0 {
		run.Workers = a.Workers
	}
	if err := run.Require("input"); err != nil {
		return nil, err
	}
	pkg, err := muret.Load(s.ctx, run.Input, run.LoadOptions())
	if err != nil {
		return nil, err
	}
	return &packageInspectResult{Summary: pkg.Summary(), Folder: pkg.Folder}, nil
}

type packageFetchArgs struct {
	Path           string  `json:"path"`
	Cache          string  `json:"cache"`
	ImagesRoot     string  `json:"images_root"`
	Workers        int     `json:"workers"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
	NoThrottle     bool    `json:"no_throttle"`
}

func (s *Server) handlePackageFetch(args json.RawMessage) (interface{}, error) {
	var a packageFetchArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	run := config.Default()
	run.Input, run.Cache, run.ImagesRoot = a.Path, a.Cache, a.ImagesRoot
	if a.Workers > 0 {
		run.Workers = a.Workers
	}
	if a.TimeoutSeconds > 0 {
		run.Timeout = time.Duration(a.TimeoutSeconds * float64(time.Second))
	}
	if a.NoThrottle {
		run.Throttle = nil
	}
	if err := run.Require("input", "cache"); err != nil {
		return nil, err
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}

	pkg, err := muret.Load(s.ctx, run.Input, run.LoadOptions())
	if err != nil {
		return nil, err
	}
	return yolo.Fetch(s.ctx, pkg, s.acquirer(run), run.ImagesRoot)
}

// acquirer builds the acquirer of run, sharing the server's in-memory images.
func (s *Server) acquirer(run *config.Run) *imaging.Acquirer {
	acq := run.Acquirer()
	acq.Memory = s.images
	return acq
}

// === Geometry Handlers ===

type bboxConvertArgs struct {
	Box    []float64 `json:"box"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

type bboxConvertResult struct {
	Box    []float64 `json:"box"`
	Format string    `json:"format"`
	Label  string    `json:"label"`
}

func (s *Server) handleBBoxConvert(args json.RawMessage) (interface{}, error) {
	var a bboxConvertArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.Box) != 4 {
		return nil, errs.Validationf("box needs 4 coordinates, got %d", len(a.Box))
	}
	from, err := bbox.ParseFormat(a.From)
	if err != nil {
		return nil, err
	}
	to, err := bbox.ParseFormat(a.To)
	if err != nil {
		return nil, err
	}
	b, err := bbox.New(a.Box[0], a.Box[1], a.Box[2], a.Box[3], from)
	if err != nil {
		return nil, err
	}
	var dims *bbox.Dimensions
	if a.Width > 0 || a.Height > 0 {
		dims = &bbox.Dimensions{Width: a.Width, Height: a.Height}
	}
	out, err := b.To(to, dims)
	if err != nil {
		return nil, err
	}
	return &bboxConvertResult{
		Box:    []float64{out.A, out.B, out.C, out.D},
		Format: out.Format.String(),
		Label:  out.String(),
	}, nil
}

type partitionPlanArgs struct {
	Count  int                  `json:"count"`
	Splits *partition.Fractions `json:"splits"`
}

type partitionPlanResult struct {
	Splits  partition.Fractions `json:"splits"`
	Counts  map[string]int      `json:"counts"`
	Offsets map[string]int      `json:"offsets"`
}

func (s *Server) handlePartitionPlan(args json.RawMessage) (interface{}, error) {
	var a partitionPlanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Count < 0 {
		return nil, errs.Validationf("count must not be negative, got %d", a.Count)
	}
	f := partition.DefaultFractions
	if a.Splits != nil {
		f = *a.Splits
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	first, second := partition.Bounds(a.Count, f)
	return &partitionPlanResult{
		Splits: f,
		Counts: map[string]int{
			partition.Train:      first,
			partition.Validation: second - first,
			partition.Test:       a.Count - second,
		},
		Offsets: map[string]int{
			partition.Train:      0,
			partition.Validation: first,
			partition.Test:       second,
		},
	}, nil
}

// === Dataset Handlers ===

type datasetTranscodeArgs struct {
	Input      string               `json:"input"`
	Output     string               `json:"output"`
	Cache      string               `json:"cache"`
	ImagesRoot string               `json:"images_root"`
	Mode       string               `json:"mode"`
	Splits     *partition.Fractions `json:"splits"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Workers    int                  `json:"workers"`
	Strict     bool                 `json:"strict"`
	NoThrottle bool                 `json:"no_throttle"`
}

func (a *datasetTranscodeArgs) run() (*config.Run, error) {
	run := config.Default()
	run.Input, run.Output, run.Cache, run.ImagesRoot = a.Input, a.Output, a.Cache, a.ImagesRoot
	if a.Mode != "" {
		mode, err := yolo.ParseMode(a.Mode)
		if err != nil {
			return nil, err
		}
		run.Mode = mode
	}
	if a.Splits != nil {
		run.Splits = *a.Splits
	}
	run.Resize = yolo.Size{Width: a.Width, Height: a.Height}
	if a.Workers > 0 {
		run.Workers = a.Workers
	}
	run.StrictLabels = a.Strict
	if a.NoThrottle {
		run.Throttle = nil
	}
	if err := run.Require("input", "output"); err != nil {
		return nil, err
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Server) handleDatasetTranscode(args json.RawMessage) (interface{}, error) {
	var a datasetTranscodeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	run, err := a.run()
	if err != nil {
		return nil, err
	}

	pkg, err := muret.Load(s.ctx, run.Input, run.LoadOptions())
	if err != nil {
		return nil, err
	}
	tr, err := yolo.New(pkg, run.TranscoderOptions(s.acquirer(run)))
	if err != nil {
		return nil, err
	}
	report, err := tr.Run(s.ctx, run.Output)
	if err != nil {
		return nil, err
	}
	// Previews of an earlier run into the same folder are stale now.
	s.previews.Clear()
	return report, nil
}

type datasetListArgs struct {
	Path  string `json:"path"`
	Split string `json:"split"`
}

type datasetListResult struct {
	Split   string   `json:"split"`
	Samples []string `json:"samples"`
	Count   int      `json:"count"`
}

func (s *Server) handleDatasetList(args json.RawMessage) (interface{}, error) {
	var a datasetListArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Split == "" {
		a.Split = partition.Train
	}
	names, err := yolo.ListSamples(a.Path, a.Split)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return &datasetListResult{Split: a.Split, Samples: names, Count: len(names)}, nil
}

type datasetPreviewArgs struct {
	Path   string `json:"path"`
	Split  string `json:"split"`
	Sample string `json:"sample"`
}

func (s *Server) handleDatasetPreview(args json.RawMessage) (interface{}, error) {
	var a datasetPreviewArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Split == "" {
		a.Split = partition.Train
	}
	if a.Sample == "" {
		return nil, errs.Validationf("sample is required")
	}
	img, objects, err := yolo.Preview(a.Path, a.Split, a.Sample, s.previews)
	if err != nil {
		return nil, err
	}
	return imaging.EncodePNGBase64(img, len(objects))
}
