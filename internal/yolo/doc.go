// Package yolo converts a loaded MuRET package into a YOLO object-detection
// dataset.
//
// A Transcoder runs five stages: it creates the output layout, writes the
// dataset.yaml manifest and the muret_dicts label exports, derives the
// detection samples of every image on a worker pool, partitions the samples
// (ordered by name) into train, validation and test, and writes one image and
// one label file per sample:
//
//	<out>/dataset.yaml
//	<out>/muret_dicts/{i2w,w2i}.json
//	<out>/images/{train,validation,test}/<sample>.png
//	<out>/labels/{train,validation,test}/<sample>.txt
//
// Each label line is "<class> <x_center> <y_center> <width> <height>" with
// coordinates normalized to the written image. The Mode decides what becomes
// an object: pages and regions (classes from the region dictionary), or
// symbols on whole images or on staff crops (classes from the agnostic
// symbol dictionary).
//
// Images that cannot be fetched or converted are dropped and listed in the
// Report; they never abort the run.
package yolo
