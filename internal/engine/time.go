package engine

import "time"

// timeNow is swapped in tests for deterministic timestamps.
var timeNow = time.Now

const timeLayout = time.RFC3339
