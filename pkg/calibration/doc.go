// Package calibration drives a tracker through a fixed sequence of on-screen
// fixation points and yields the computed calibration model. It contains:
//
//   - FixationPoint and Sequence: the ordered, consumable list of targets
//   - Surface: the rendering collaborator that owns a dispatcher
//   - Runner: the state machine walking the sequence, one run at a time
//   - Phase, Transition and Status: the view model shared with the daemon,
//     client and CLI so JSON contracts stay consistent
package calibration
