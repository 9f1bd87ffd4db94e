// Package server exposes the MuRET to YOLO pipeline as an MCP (Model Context
// Protocol) server.
//
// # Protocol
//
// The server speaks JSON-RPC 2.0 over stdio:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Package:
//   - package_inspect: Load a package and summarize it
//   - package_fetch: Download every image of a package into a cache folder
//
// Geometry:
//   - bbox_convert: Convert a box between yolo, coco and pascal
//   - partition_plan: Split sizes for a sample count
//
// Dataset:
//   - dataset_transcode: Write a YOLO dataset from a package
//   - dataset_list: List the samples of a split
//   - dataset_preview: Render the labels of one sample as PNG
//
// # Image Caching
//
// Downloaded package images are decoded once and kept in memory for the
// lifetime of the process, on top of the on-disk cache folder given to each
// call. Dataset images rendered by dataset_preview are cached separately and
// dropped whenever dataset_transcode rewrites a dataset.
//
// # Error Handling
//
// Tool failures are returned as JSON-RPC error responses:
//   - code -32602 when the arguments or the package are invalid
//     (errs.ErrConfig, errs.ErrValidation)
//   - code -32000 for any other failure
//   - data carries the Go error string
//
// # Usage
//
//	srv := server.New()
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
