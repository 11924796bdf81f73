// Package traj provides the atomic trajectory and structure model shared
// by the campaign controller, the restart deriver and the estimators:
//
//   - [Structure]: a simulation-ready supercell (species, positions, cell)
//   - [Frame]: one sampled MD configuration (positions + velocities)
//   - [Trajectory]: the time-ordered frame sequence of one or more runs
//   - [Concatenate]: merges run segments, deduplicating restart frames
//
// A trajectory may cover only the mobile subset of a structure's atoms; in
// that case its atoms map onto the leading indices of the structure.
package traj
