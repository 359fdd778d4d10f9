// Package viz renders simulation output for the terminal.
//
//   - [Terminal]: a [sim.Surface] that draws each frame as half-block cells
//   - [Canvas]: Braille dot canvas used for the satellite position map
//   - report helpers for the device table, the partition plan, sweep
//     intervals and validation mismatches
//
// Frames are downsampled by nearest-pixel sampling. Colors are passed to
// lipgloss as 24-bit hex and degrade to whatever the terminal profile
// supports.
package viz
