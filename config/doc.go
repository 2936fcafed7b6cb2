// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config loads render graph descriptions written in HCL.
//
// A description declares resources and the passes that access them:
//
//	frames_in_flight = 2
//
//	resource "image" "color" {
//	  format      = "rgba16float"
//	  size        = "swapchain"
//	  clear_color = [0, 0, 0, 1]
//	}
//
//	resource "buffer" "particles" {
//	  size   = 65536
//	  usage  = ["storage", "vertex"]
//	}
//
//	pass "simulate" {
//	  queue = "compute"
//	  write "particles" {}
//	}
//
//	pass "scene" {
//	  write "color" {}
//	}
//
//	pass "composite" {
//	  read "particles" {
//	    stages = ["vertex_input"]
//	    access = ["vertex_attribute_read"]
//	  }
//	  read "color" {}
//	  write_backbuffer {}
//	}
//
// The size of an image is "swapchain", a number scaling the swapchain extent
// or a [width, height] pair. The size of a buffer is a byte count.
//
// Accesses within a pass are registered in source order, and passes in file
// order, so [Description.Apply] reproduces the graph a program would build
// with the fluent API. Every error returned by [Load], [Parse] and
// [Description.Apply] is marked with [ErrInvalid] and
// framegraph.ErrConfiguration; the message carries the source range.
package config
