package types

import "github.com/andresmejia3/faceprep/internal/normalize"

// Task is a single selected image sent to a worker for normalization.
// Seq is its position in the selected sequence.
type Task struct {
	Seq int
	ID  int
}

// Result carries a worker's output back to the aggregator.
type Result struct {
	Seq   int
	ID    int
	Image *normalize.Image
	Err   error
}
