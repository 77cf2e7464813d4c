// Package shaders provides embedded GLSL shader sources.
package shaders

import _ "embed"

// TileVertexShader lifts the tile grid by its height texture.
//
//go:embed tile.vert
var TileVertexShader string

// TileFragmentShader shades tiles from the color texture, the height
// palette or a flat tint.
//
//go:embed tile.frag
var TileFragmentShader string
